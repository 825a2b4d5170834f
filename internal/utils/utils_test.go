package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"foo": "bar"})

	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusCreated)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("body[foo] = %q; want bar", got["foo"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, "unknown truck")

	if w.Code != http.StatusNotFound {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusNotFound)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["error"] != "Not Found" || got["message"] != "unknown truck" {
		t.Errorf("body = %v", got)
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{name: "absent", query: "", want: 50},
		{name: "value", query: "limit=7", want: 7},
		{name: "at max", query: "limit=500", want: 500},
		{name: "above max", query: "limit=501", wantErr: true},
		{name: "zero", query: "limit=0", wantErr: true},
		{name: "not a number", query: "limit=abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got, err := QueryInt(r, "limit", 50, 500)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("QueryInt(%q) error = nil", tt.query)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("QueryInt(%q) = %d, %v; want %d", tt.query, got, err, tt.want)
			}
		})
	}
}
