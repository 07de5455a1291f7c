package descriptor

import (
	"errors"
	"testing"
)

func TestDefaultScope(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"https with path", "https://api.contoso.com/orders", "https://api.contoso.com/user_impersonation", false},
		{"port kept", "https://api.contoso.com:8443/v1/orders?top=5", "https://api.contoso.com:8443/user_impersonation", false},
		{"http origin", "http://localhost/items", "http://localhost/user_impersonation", false},
		{"relative url", "/orders", "", true},
		{"no scheme", "api.contoso.com/orders", "", true},
		{"garbage", "://bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultScope(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("DefaultScope(%q) expected error, got %q", tt.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DefaultScope(%q) unexpected error: %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("DefaultScope(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestResource_Scope(t *testing.T) {
	r := Resource{URL: "https://crm.contoso.com/api/data", ResourceScope: "https://crm.contoso.com/.default"}
	got, err := r.Scope()
	if err != nil {
		t.Fatalf("Scope() unexpected error: %v", err)
	}
	if got != "https://crm.contoso.com/.default" {
		t.Errorf("Scope() = %q, want explicit scope", got)
	}

	r.ResourceScope = ""
	got, _ = r.Scope()
	if got != "https://crm.contoso.com/user_impersonation" {
		t.Errorf("Scope() = %q, want derived scope", got)
	}
}

func TestPrepare(t *testing.T) {
	t.Run("normalizes method and defaults to GET", func(t *testing.T) {
		out, err := Prepare([]Resource{
			{URL: " https://a.example.com/x "},
			{URL: "https://b.example.com/y", Method: "post"},
		})
		if err != nil {
			t.Fatalf("Prepare() unexpected error: %v", err)
		}
		if out[0].Method != MethodGet {
			t.Errorf("out[0].Method = %s, want GET", out[0].Method)
		}
		if out[0].URL != "https://a.example.com/x" {
			t.Errorf("out[0].URL = %q, want trimmed", out[0].URL)
		}
		if out[1].Method != MethodPost {
			t.Errorf("out[1].Method = %s, want POST", out[1].Method)
		}
	})

	t.Run("empty list is valid", func(t *testing.T) {
		out, err := Prepare(nil)
		if err != nil {
			t.Fatalf("Prepare(nil) unexpected error: %v", err)
		}
		if len(out) != 0 {
			t.Errorf("len(out) = %d, want 0", len(out))
		}
	})

	t.Run("empty url rejected", func(t *testing.T) {
		_, err := Prepare([]Resource{{URL: "https://ok.example.com"}, {URL: ""}})
		if !errors.Is(err, ErrEmptyURL) {
			t.Errorf("Prepare() error = %v, want ErrEmptyURL", err)
		}
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		_, err := Prepare([]Resource{{URL: "https://ok.example.com", Method: "TRACE"}})
		if !errors.Is(err, ErrInvalidMethod) {
			t.Errorf("Prepare() error = %v, want ErrInvalidMethod", err)
		}
	})

	t.Run("relative url needs explicit scope", func(t *testing.T) {
		if _, err := Prepare([]Resource{{URL: "/relative"}}); !errors.Is(err, ErrNoOrigin) {
			t.Errorf("Prepare() error = %v, want ErrNoOrigin", err)
		}
		if _, err := Prepare([]Resource{{URL: "/relative", ResourceScope: "api://x/.default"}}); err != nil {
			t.Errorf("Prepare() unexpected error with explicit scope: %v", err)
		}
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"json list", `[{"url":"https://a.example.com/x","method":"GET"}]`, 1, false},
		{"yaml list", "- url: https://a.example.com/x\n- url: https://b.example.com/y\n  method: put\n", 2, false},
		{"wrapped document", "descriptors:\n  - url: https://a.example.com/x\n    clientId: abc\n", 1, false},
		{"json object", `{"descriptors":[{"url":"https://a.example.com/x"}]}`, 1, false},
		{"invalid entry", `[{"url":""}]`, 0, true},
		{"malformed", "[{", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Error("Decode() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len(Decode()) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEncodeDecodeKeepsOrder(t *testing.T) {
	in := []Resource{
		{URL: "https://a.example.com/x", Method: MethodGet},
		{URL: "https://b.example.com/y", Method: MethodPost, ClientID: "c1", ResourceScope: "https://b.example.com/.default"},
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() unexpected error: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
