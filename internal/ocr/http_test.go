package ocr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"fraudocr/pkg/models"
)

var samplePDF = []byte("%PDF-1.4\n%fake\n")

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(HTTPConfig{Endpoint: srv.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func TestHTTPClientExtract(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ocr/pdf" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		body, _ := io.ReadAll(f)
		if hdr.Filename != "2023_IC3Report.pdf" || string(body) != string(samplePDF) {
			t.Errorf("upload = %s (%d bytes)", hdr.Filename, len(body))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"filename":"2023_IC3Report.pdf","total_pages":2,"results":[
			{"page":1,"text":"<table><tr><td>Phishing/Spoofing</td><td>23,252</td></tr></table>","status":"success"},
			{"page":2,"text":"","status":"failure"}]}`)
	})

	res, err := c.Extract(context.Background(), &Document{Filename: "2023_IC3Report.pdf", Content: samplePDF})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.TotalPages != 2 || len(res.Results) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Results[0].Status != models.PageStatusSuccess || res.Results[1].Status != models.PageStatusFailure {
		t.Fatalf("statuses = %s, %s", res.Results[0].Status, res.Results[1].Status)
	}
}

func TestHTTPClientLegacyShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"filename":"a.pdf","ocr_results":["page one","Error: OCR failed for this page."]}`)
	})

	res, err := c.Extract(context.Background(), &Document{Filename: "a.pdf", Content: samplePDF})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.TotalPages != 2 || res.Results[1].Page != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Results[0].Status != models.PageStatusSuccess || res.Results[1].Status != models.PageStatusFailure {
		t.Fatalf("statuses = %+v", res.Results)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, `{}`, ErrUnauthorized},
		{"server error", http.StatusBadGateway, `upstream down`, ErrOCRFailed},
		{"rejected file", http.StatusBadRequest, `{"error":"File must be a PDF."}`, ErrInvalidPDF},
		{"not json", http.StatusOK, `<html>`, ErrMalformedResponse},
		{"no pages", http.StatusOK, `{"filename":"a.pdf"}`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Extract(context.Background(), &Document{Filename: "a.pdf", Content: samplePDF})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(HTTPConfig{Endpoint: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Extract(context.Background(), &Document{Filename: "a.pdf", Content: samplePDF})
	if !errors.Is(err, ErrEndpointUnavailable) {
		t.Fatalf("err = %v, want ErrEndpointUnavailable", err)
	}
}

func TestHTTPClientRejectsNonPDF(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	_, err := c.Extract(context.Background(), &Document{Filename: "a.txt", Content: []byte("hello")})
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("err = %v, want ErrInvalidPDF", err)
	}
}

func TestNewHTTPClientRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPClient(HTTPConfig{}); !errors.Is(err, ErrEndpointUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
