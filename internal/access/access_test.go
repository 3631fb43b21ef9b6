package access

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		action    Action
		want      bool
	}{
		{"unapproved read", Principal{}, Read, false},
		{"unapproved admin flag still blocked", Principal{IsAdmin: true}, Admin, false},
		{"approved read", Principal{IsApproved: true}, Read, true},
		{"approved write", Principal{IsApproved: true}, Write, true},
		{"approved non-admin blocked from admin", Principal{IsApproved: true}, Admin, false},
		{"approved admin", Principal{IsApproved: true, IsAdmin: true}, Admin, true},
		{"unknown action", Principal{IsApproved: true, IsAdmin: true}, Action("delete"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Can(tt.principal, tt.action); got != tt.want {
				t.Fatalf("Can(%+v, %s) = %v, want %v", tt.principal, tt.action, got, tt.want)
			}
		})
	}
}
