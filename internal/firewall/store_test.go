package firewall

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draft(action, src string, port int, proto string) RuleDraft {
	return RuleDraft{Action: action, SrcIP: src, DstPort: port, Protocol: proto}
}

func TestRuleStore_AddAssignsMonotonicIDs(t *testing.T) {
	s := NewRuleStore()

	r1, err := s.Add(draft("deny", "192.168.1.100", 23, "tcp"))
	require.NoError(t, err)
	r2, err := s.Add(draft("ALLOW", "any", 443, "TCP"))
	require.NoError(t, err)

	assert.Equal(t, 1, r1.ID)
	assert.Equal(t, 2, r2.ID)
	assert.Equal(t, ActionDeny, r1.Action)
	assert.Equal(t, ProtoTCP, r1.Protocol)

	// Removing the newest rule must not free its id.
	assert.True(t, s.Remove(r2.ID))
	r3, err := s.Add(draft("ALLOW", "any", 80, "TCP"))
	require.NoError(t, err)
	assert.Equal(t, 3, r3.ID)

	ids := []int{}
	for _, r := range s.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int{1, 3}, ids)
}

func TestRuleStore_AddRejectsInvalidDrafts(t *testing.T) {
	tests := []struct {
		name  string
		draft RuleDraft
		field string
	}{
		{"empty source", draft("DENY", "", 22, "TCP"), "src_ip"},
		{"bad source", draft("DENY", "10.0.0.0/99", 22, "TCP"), "src_ip"},
		{"negative port", draft("DENY", "any", -1, "TCP"), "dst_port"},
		{"port too large", draft("DENY", "any", 65536, "TCP"), "dst_port"},
		{"unknown action", draft("DROP", "any", 22, "TCP"), "action"},
		{"unknown protocol", draft("DENY", "any", 22, "SCTP"), "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRuleStore()
			_, err := s.Add(tt.draft)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, s.Len(), "rejected draft must not mutate the store")
		})
	}
}

func TestRuleStore_InvalidSourceIsAddressError(t *testing.T) {
	_, err := NewRuleStore().Add(draft("DENY", "300.1.1.1", 22, "TCP"))
	assert.True(t, errors.Is(err, ErrInvalidAddress))
	assert.True(t, IsClientError(err))
}

func TestRuleStore_ReportsAllFieldErrors(t *testing.T) {
	err := draft("DROP", "", 70000, "SCTP").Validate()
	require.Error(t, err)
	for _, field := range []string{"action", "src_ip", "dst_port", "protocol"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestRuleStore_RemoveIsIdempotent(t *testing.T) {
	s := NewRuleStore()
	_, err := s.Add(draft("DENY", "any", 22, "TCP"))
	require.NoError(t, err)
	before := s.List()

	assert.False(t, s.Remove(42))
	assert.False(t, s.Remove(42))
	assert.Equal(t, before, s.List())
}

func TestRuleStore_ListReturnsCopy(t *testing.T) {
	s := NewRuleStore()
	_, err := s.Add(draft("DENY", "any", 22, "TCP"))
	require.NoError(t, err)

	list := s.List()
	list[0].Action = ActionAllow

	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, ActionDeny, got.Action)

	_, ok = s.Get(99)
	assert.False(t, ok)
	assert.NotNil(t, NewRuleStore().List(), "empty list should not be nil")
}

func TestRuleStore_ConcurrentAdd(t *testing.T) {
	s := NewRuleStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			_, _ = s.Add(draft("ALLOW", "any", port, "UDP"))
			s.List()
		}(i)
	}
	wg.Wait()

	rules := s.List()
	require.Len(t, rules, 50)
	seen := map[int]bool{}
	for i, r := range rules {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
		if i > 0 {
			assert.Greater(t, r.ID, rules[i-1].ID, "ids must follow insertion order")
		}
	}
}
