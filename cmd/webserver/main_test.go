package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"examgen"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	reqs    []examgen.GenerateRequest
	flushes int
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, req examgen.GenerateRequest) (*examgen.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &examgen.Result{
		Records: []examgen.QuestionRecord{{
			ID:      examgen.RecordID(req.Params, 0),
			Type:    req.Params.QType,
			Stem:    "Which organelle performs photosynthesis?",
			Options: []string{"Chloroplast", "Nucleus"},
		}},
		Outputs: examgen.OutputPaths{JSONL: "outputs/x.jsonl", CSV: "outputs/x.csv"},
	}, nil
}

func (f *fakeGenerator) Flush(ctx context.Context) error {
	f.flushes++
	return nil
}

type fakeHistory struct {
	records []examgen.QuestionRecord
}

func (h *fakeHistory) Append(ctx context.Context, records []examgen.QuestionRecord) error {
	h.records = append(h.records, records...)
	return nil
}

func (h *fakeHistory) Tail(ctx context.Context, n int) ([]examgen.QuestionRecord, error) {
	if n > 0 && len(h.records) > n {
		return h.records[len(h.records)-n:], nil
	}
	return h.records, nil
}

func newTestServer(gen Generator) (*Server, *fakeHistory) {
	examgen.SetLogger(zap.NewNop())
	h := &fakeHistory{}
	return NewServer(gen, h, sessions.NewCookieStore([]byte("test-secret")), time.Minute), h
}

func postForm(t *testing.T, handler http.Handler, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func validForm() url.Values {
	return url.Values{
		"subject":     {"science"},
		"topic":       {"photosynthesis"},
		"qtype":       {"tf"},
		"difficulty":  {"easy"},
		"bloom_level": {"remember"},
		"n":           {"50"},
		"max_k":       {"2"},
		"use_cache":   {"1"},
	}
}

func TestGenerateRendersRecords(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newTestServer(gen)

	rec := postForm(t, s.Routes(), validForm())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Which organelle performs photosynthesis?")
	assert.Contains(t, rec.Body.String(), "outputs/x.csv")

	require.Len(t, gen.reqs, 1)
	req := gen.reqs[0]
	assert.Equal(t, 20, req.Params.N)
	assert.Equal(t, 4, req.MaxK)
	assert.True(t, req.UseCache)
	assert.Equal(t, examgen.QTypeTF, req.Params.QType)
	assert.Equal(t, 1, gen.flushes)
}

func TestGenerateRejectsInvalidParams(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newTestServer(gen)

	form := validForm()
	form.Set("qtype", "essay")
	rec := postForm(t, s.Routes(), form)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "qtype must be one of")
	assert.Empty(t, gen.reqs)
}

func TestGenerateReportsHardFailure(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: collection missing", examgen.ErrIndexUnavailable)}
	s, _ := newTestServer(gen)

	rec := postForm(t, s.Routes(), validForm())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nothing was generated")
	assert.Equal(t, 0, gen.flushes)
}

func TestFormRemembersLastValues(t *testing.T) {
	s, _ := newTestServer(&fakeGenerator{})
	handler := s.Routes()

	form := validForm()
	form.Set("topic", "cell respiration")
	rec := postForm(t, handler, form)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	page := httptest.NewRecorder()
	handler.ServeHTTP(page, req)

	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `value="cell respiration"`)
}

func TestFormDefaults(t *testing.T) {
	s, _ := newTestServer(&fakeGenerator{})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="photosynthesis"`)
}

func TestHistoryPage(t *testing.T) {
	s, h := newTestServer(&fakeGenerator{})
	h.records = []examgen.QuestionRecord{{Subject: "science", Topic: "cells", Stem: "What is ATP?"}}

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "* [science/cells] What is ATP?")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, clamp(0, 1, 20))
	assert.Equal(t, 20, clamp(21, 1, 20))
	assert.Equal(t, 7, clamp(7, 1, 20))
}
