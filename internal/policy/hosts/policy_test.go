package hosts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		allow []string
		deny  []string
		host  string
		want  bool
	}{
		{"empty policy admits all", nil, nil, "shop.test", true},
		{"exact allow", []string{"shop.test"}, nil, "SHOP.test", true},
		{"not in allow list", []string{"shop.test"}, nil, "other.test", false},
		{"wildcard allow", []string{"*.shop.test"}, nil, "eu.shop.test", true},
		{"wildcard matches apex", []string{".shop.test"}, nil, "shop.test", true},
		{"suffix needs label boundary", []string{"*.shop.test"}, nil, "badshop.test", false},
		{"deny wins", []string{"*.shop.test"}, []string{"admin.shop.test"}, "admin.shop.test", false},
		{"deny only", nil, []string{"*.internal"}, "db.internal", false},
		{"blank patterns ignored", []string{" ", ""}, nil, "shop.test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, New(tt.allow, tt.deny).Allowed(tt.host))
		})
	}
}

func TestNilPolicyAdmitsAll(t *testing.T) {
	t.Parallel()

	var p *Policy
	require.True(t, p.Allowed("shop.test"))
}
