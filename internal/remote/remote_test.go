package remote

import "testing"

func TestJoinAndClean(t *testing.T) {
	tests := []struct {
		base  string
		elems []string
		want  string
	}{
		{"/modB-upload/", []string{"sub-01"}, "modB-upload/sub-01"},
		{"modB-upload", []string{"sub-01/ses-1", "anat"}, "modB-upload/sub-01/ses-1/anat"},
		{"", []string{"a"}, "a"},
		{"x", []string{`sub-01\anat`}, "x/sub-01/anat"},
		{"/", nil, ""},
	}
	for _, tc := range tests {
		if got := Join(tc.base, tc.elems...); got != tc.want {
			t.Fatalf("Join(%q, %v) = %q, want %q", tc.base, tc.elems, got, tc.want)
		}
	}
}

func TestPermissionString(t *testing.T) {
	if PermissionRead.String() != "read" || PermissionAll.String() != "all" {
		t.Fatalf("unexpected permission labels %s %s", PermissionRead, PermissionAll)
	}
}
