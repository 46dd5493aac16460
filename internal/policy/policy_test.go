package policy

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Mode
		wantErr bool
	}{
		{name: "user", input: "user", want: ModeUser},
		{name: "team", input: "team", want: ModeTeam},
		{name: "unlimited", input: "unlimited", want: ModeUnlimited},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "everyone", wantErr: true},
		{name: "case sensitive", input: "User", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMode_Exclusive(t *testing.T) {
	if !ModeUser.Exclusive() {
		t.Error("user mode should be exclusive")
	}
	if !ModeTeam.Exclusive() {
		t.Error("team mode should be exclusive")
	}
	if ModeUnlimited.Exclusive() {
		t.Error("unlimited mode should not be exclusive")
	}
}

func TestScope_OwnerKeys(t *testing.T) {
	tests := []struct {
		name      string
		scope     Scope
		wantField string
		wantID    uint
	}{
		{
			name:      "user mode keys on user",
			scope:     Scope{Mode: ModeUser, UserID: 42, TeamID: 7},
			wantField: "user_id",
			wantID:    42,
		},
		{
			name:      "team mode keys on team",
			scope:     Scope{Mode: ModeTeam, UserID: 42, TeamID: 7},
			wantField: "team_id",
			wantID:    7,
		},
		{
			name:      "unlimited mode keys on user",
			scope:     Scope{Mode: ModeUnlimited, UserID: 42, TeamID: 7},
			wantField: "user_id",
			wantID:    42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.OwnerField(); got != tt.wantField {
				t.Errorf("OwnerField() = %q, want %q", got, tt.wantField)
			}
			if got := tt.scope.OwnerID(); got != tt.wantID {
				t.Errorf("OwnerID() = %d, want %d", got, tt.wantID)
			}
		})
	}
}
