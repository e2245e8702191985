package classify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testOrigin = "https://papers.example.com"

func mustNew(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultConfig(testOrigin))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{name: "https origin", origin: "https://papers.example.com"},
		{name: "origin with port", origin: "http://localhost:8080"},
		{name: "relative origin", origin: "/papers", wantErr: true},
		{name: "empty origin", origin: "", wantErr: true},
		{name: "unparseable origin", origin: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(DefaultConfig(tt.origin))
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	c := mustNew(t)

	tests := []struct {
		name   string
		method string
		url    string
		want   Class
	}{
		{name: "root document", method: "GET", url: testOrigin + "/", want: ClassShell},
		{name: "script", method: "GET", url: testOrigin + "/app.js", want: ClassShell},
		{name: "manifest", method: "GET", url: testOrigin + "/manifest.json", want: ClassShell},
		{name: "metadata index", method: "GET", url: testOrigin + "/metadata/index.json", want: ClassMetadata},
		{name: "metadata subject", method: "GET", url: testOrigin + "/metadata/subject_12.json", want: ClassMetadata},
		{name: "nested metadata segment", method: "GET", url: testOrigin + "/v2/metadata/index.json", want: ClassMetadata},
		{name: "metadata-like file name is not a segment", method: "GET", url: testOrigin + "/metadata.json", want: ClassShell},
		{name: "pdf", method: "GET", url: testOrigin + "/papers/CS/CS/CS2024.pdf", want: ClassPayload},
		{name: "uppercase PDF", method: "GET", url: testOrigin + "/papers/EE/EE2-2021.PDF", want: ClassPayload},
		{name: "jpg", method: "GET", url: testOrigin + "/scans/q1.jpg", want: ClassPayload},
		{name: "jpeg", method: "GET", url: testOrigin + "/scans/q1.JPEG", want: ClassPayload},
		{name: "png", method: "GET", url: testOrigin + "/scans/q1.png", want: ClassPayload},
		{name: "gif is shell", method: "GET", url: testOrigin + "/icon.gif", want: ClassShell},
		{name: "pdf under metadata is metadata", method: "GET", url: testOrigin + "/metadata/legend.pdf", want: ClassMetadata},
		{name: "query does not affect extension", method: "GET", url: testOrigin + "/papers/a.pdf?dl=1", want: ClassPayload},
		{name: "POST", method: "POST", url: testOrigin + "/papers/a.pdf", want: ClassUnhandled},
		{name: "HEAD", method: "HEAD", url: testOrigin + "/index.html", want: ClassUnhandled},
		{name: "cross origin", method: "GET", url: "https://cdn.example.net/app.js", want: ClassUnhandled},
		{name: "different scheme", method: "GET", url: "http://papers.example.com/app.js", want: ClassUnhandled},
		{name: "host case-insensitive", method: "GET", url: "https://PAPERS.example.com/app.js", want: ClassShell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, nil)
			if got := c.Classify(req); got != tt.want {
				t.Errorf("Classify(%s %s) = %v, want %v", tt.method, tt.url, got, tt.want)
			}
		})
	}
}

func TestClassify_RelativeURLIsSameOrigin(t *testing.T) {
	c := mustNew(t)

	req := &http.Request{Method: http.MethodGet, URL: mustParse(t, "/papers/CS/CS2024.pdf")}
	if got := c.Classify(req); got != ClassPayload {
		t.Errorf("Classify() = %v, want %v", got, ClassPayload)
	}
}

func TestClassify_NilRequest(t *testing.T) {
	c := mustNew(t)
	if got := c.Classify(nil); got != ClassUnhandled {
		t.Errorf("Classify(nil) = %v, want %v", got, ClassUnhandled)
	}
}

// TestClassify_Idempotent ensures classifying the same request twice yields the same class
func TestClassify_Idempotent(t *testing.T) {
	c := mustNew(t)
	urls := []string{
		testOrigin + "/",
		testOrigin + "/metadata/subject_12.json",
		testOrigin + "/papers/CS/CS2024.pdf",
		"https://elsewhere.example/x.pdf",
	}

	for _, u := range urls {
		req := httptest.NewRequest(http.MethodGet, u, nil)
		first := c.Classify(req)
		for i := 0; i < 5; i++ {
			if got := c.Classify(req); got != first {
				t.Errorf("Classify(%s) run %d = %v, want %v", u, i, got, first)
			}
		}
	}
}

func TestClassify_CustomConfig(t *testing.T) {
	c, err := New(Config{
		Origin:            testOrigin,
		MetadataSegment:   "meta",
		PayloadExtensions: []string{".PDF", "webp"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := map[string]Class{
		"/meta/index.json":     ClassMetadata,
		"/metadata/index.json": ClassShell,
		"/a.pdf":               ClassPayload,
		"/a.webp":              ClassPayload,
		"/a.png":               ClassShell,
	}
	for p, want := range tests {
		req := httptest.NewRequest(http.MethodGet, testOrigin+p, nil)
		if got := c.Classify(req); got != want {
			t.Errorf("Classify(%s) = %v, want %v", p, got, want)
		}
	}
}

func TestClassifier_Origin(t *testing.T) {
	c, err := New(DefaultConfig("HTTPS://Papers.Example.com"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := c.Origin(); got != "https://papers.example.com" {
		t.Errorf("Origin() = %q", got)
	}
}
