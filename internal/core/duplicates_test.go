package core

import "testing"

func TestFindDuplicates(t *testing.T) {
	existing := []Contact{
		{ID: "1", Name: "Ada Lovelace", ContactInfo: ContactInfo{Emails: []string{"ada@example.com"}}},
		{ID: "2", Name: "Alan Turing", ContactInfo: ContactInfo{Phones: []string{"+1 (555) 010-2000"}}},
		{ID: "3", Name: "Grace Hopper", ContactInfo: ContactInfo{LinkedInURL: "https://linkedin.com/in/grace"}},
	}

	tests := []struct {
		name      string
		incoming  Contact
		wantIDs   []string
		wantTypes []MatchType
	}{
		{
			name:     "no match",
			incoming: Contact{Name: "Someone Else"},
		},
		{
			name:      "name ignores case and spacing",
			incoming:  Contact{Name: "  ada LOVELACE "},
			wantIDs:   []string{"1"},
			wantTypes: []MatchType{MatchName},
		},
		{
			name:      "email ignores case",
			incoming:  Contact{Name: "A. L.", ContactInfo: ContactInfo{Emails: []string{"ADA@example.com"}}},
			wantIDs:   []string{"1"},
			wantTypes: []MatchType{MatchEmail},
		},
		{
			name:      "phone compares digits",
			incoming:  Contact{Name: "A. T.", ContactInfo: ContactInfo{Phones: []string{"15550102000"}}},
			wantIDs:   []string{"2"},
			wantTypes: []MatchType{MatchPhone},
		},
		{
			name:      "linkedin url",
			incoming:  Contact{Name: "G.", ContactInfo: ContactInfo{LinkedInURL: "https://LinkedIn.com/in/grace"}},
			wantIDs:   []string{"3"},
			wantTypes: []MatchType{MatchLinkedIn},
		},
		{
			name: "name outranks email on the same record",
			incoming: Contact{Name: "Ada Lovelace", ContactInfo: ContactInfo{
				Emails: []string{"ada@example.com"},
			}},
			wantIDs:   []string{"1"},
			wantTypes: []MatchType{MatchName},
		},
		{
			name: "one match per existing record",
			incoming: Contact{Name: "Mixed", ContactInfo: ContactInfo{
				Phones:      []string{"555-010-2000 ext"},
				LinkedInURL: "https://linkedin.com/in/grace",
				Emails:      []string{"ada@example.com"},
			}},
			wantIDs:   []string{"1", "3"},
			wantTypes: []MatchType{MatchEmail, MatchLinkedIn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindDuplicates(existing, tt.incoming)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d matches, want %d: %+v", len(got), len(tt.wantIDs), got)
			}
			for i, m := range got {
				if m.Existing.ID != tt.wantIDs[i] || m.MatchType != tt.wantTypes[i] {
					t.Errorf("match %d = (%s, %s), want (%s, %s)",
						i, m.Existing.ID, m.MatchType, tt.wantIDs[i], tt.wantTypes[i])
				}
			}
		})
	}
}

func TestFindDuplicatesEmptyExisting(t *testing.T) {
	if got := FindDuplicates(nil, Contact{Name: "Ada"}); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestDuplicateIndexAddReplaces(t *testing.T) {
	idx := NewDuplicateIndex([]Contact{{ID: "1", Name: "Ada", ContactInfo: ContactInfo{Emails: []string{"old@example.com"}}}})

	idx.Add(Contact{ID: "1", Name: "Ada", ContactInfo: ContactInfo{Emails: []string{"new@example.com"}}})

	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}
	if got := idx.Find(Contact{Name: "x", ContactInfo: ContactInfo{Emails: []string{"old@example.com"}}}); len(got) != 0 {
		t.Errorf("stale email still indexed: %+v", got)
	}
	got := idx.Find(Contact{Name: "x", ContactInfo: ContactInfo{Emails: []string{"new@example.com"}}})
	if len(got) != 1 || got[0].Existing.ContactInfo.Emails[0] != "new@example.com" {
		t.Errorf("replacement not indexed: %+v", got)
	}
	if c, ok := idx.Get("1"); !ok || c.ContactInfo.Emails[0] != "new@example.com" {
		t.Errorf("Get = %+v, %v", c, ok)
	}
}

func TestPhoneDigits(t *testing.T) {
	if got := PhoneDigits("+1 (555) 010-2000"); got != "15550102000" {
		t.Errorf("PhoneDigits = %q", got)
	}
	if got := PhoneDigits("n/a"); got != "" {
		t.Errorf("PhoneDigits = %q, want empty", got)
	}
}
