package admission

import "testing"

func TestNamingHelpers(t *testing.T) {
	tests := []struct {
		name      string
		upload    bool
		family    string
		collected string
	}{
		{"modB-upload", true, "modB", "modB-collected"},
		{"proj_mri_upload", true, "mri", "proj_mri_collected"},
		{"proj-eeg-rest_upload", true, "eeg", "proj-eeg-rest_collected"},
		{"upload", false, "upload", ""},
		{"_upload", false, "upload", ""},
		{"proj_mri_uploads", false, "mri", ""},
		{"proj_mriupload", false, "proj", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasUploadSuffix(tc.name); got != tc.upload {
				t.Fatalf("HasUploadSuffix = %v, want %v", got, tc.upload)
			}
			if got := FamilyOf(tc.name); got != tc.family {
				t.Fatalf("FamilyOf = %q, want %q", got, tc.family)
			}
			if tc.upload {
				if got := CollectedName(tc.name); got != tc.collected {
					t.Fatalf("CollectedName = %q, want %q", got, tc.collected)
				}
			}
		})
	}
}

func TestRecipientsReturnsCopy(t *testing.T) {
	item := WorkItem{NotifyAddresses: []string{"a@example.org"}}
	got := item.Recipients()
	got[0] = "changed"
	if item.NotifyAddresses[0] != "a@example.org" {
		t.Fatal("Recipients must not expose the backing slice")
	}
}
