package credentials

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		bodyKey    string
		def        string
		want       string
	}{
		{
			name:       "bearer header wins over body and default",
			authHeader: "Bearer abc",
			bodyKey:    "xyz",
			def:        "envkey",
			want:       "abc",
		},
		{
			name:       "bearer scheme is case-insensitive",
			authHeader: "bearer tok123",
			want:       "tok123",
		},
		{
			name:       "raw header used verbatim when not bearer-shaped",
			authHeader: "rawkey",
			bodyKey:    "xyz",
			want:       "rawkey",
		},
		{
			name:       "three-part header is treated as raw",
			authHeader: "Bearer abc extra",
			want:       "Bearer abc extra",
		},
		{
			name:       "wrong scheme is treated as raw",
			authHeader: "Basic dXNlcjpwYXNz",
			want:       "Basic dXNlcjpwYXNz",
		},
		{
			name:    "body key when header absent",
			bodyKey: "xyz",
			def:     "envkey",
			want:    "xyz",
		},
		{
			name: "process default when header and body absent",
			def:  "envkey",
			want: "envkey",
		},
		{
			name: "absence is a valid outcome",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.authHeader, tt.bodyKey, tt.def)
			if got != tt.want {
				t.Errorf("Resolve(%q, %q, %q) = %q, want %q",
					tt.authHeader, tt.bodyKey, tt.def, got, tt.want)
			}
		})
	}
}
