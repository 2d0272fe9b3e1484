package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"pastor", RolePastor, true},
		{"editor", RoleEditor, true},
		{"member", RoleMember, true},
		// Legacy aliases from the old admin panel.
		{"leader", RoleEditor, true},
		{"user", RoleMember, true},
		// Case and whitespace tolerance.
		{"Admin", RoleAdmin, true},
		{"  PASTOR ", RolePastor, true},
		// Unknowns fail closed.
		{"superadmin", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := NormalizeRole(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
