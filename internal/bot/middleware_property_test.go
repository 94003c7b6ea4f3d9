package bot

import (
	"testing"

	"pgregory.net/rapid"

	"gym-ledger-bot/internal/config"
)

func drawIDs(t *rapid.T, label string, minN int) []int64 {
	n := rapid.IntRange(minN, 10).Draw(t, "num_"+label)
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = rapid.Int64Range(1, 1000000000).Draw(t, label)
	}
	return ids
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// TestAdminPermissionCheckProperty checks that a user is an admin if and
// only if their ID is in admin.ids.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := drawIDs(t, "adminID", 1)
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if got, want := cfg.IsAdmin(userID), contains(adminIDs, userID); got != want {
			t.Fatalf("IsAdmin(%d) = %v, want %v, admins=%v", userID, got, want, adminIDs)
		}

		known := adminIDs[rapid.IntRange(0, len(adminIDs)-1).Draw(t, "adminIndex")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("known admin %d not recognized", known)
		}
	})
}

// TestStaffWhitelistProperty checks that staff are exactly the listed
// staff plus the admins.
func TestStaffWhitelistProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := drawIDs(t, "adminID", 0)
		staffIDs := drawIDs(t, "staffID", 0)
		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
			Staff: config.StaffConfig{IDs: staffIDs},
		}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		want := contains(adminIDs, userID) || contains(staffIDs, userID)
		if got := cfg.IsStaff(userID); got != want {
			t.Fatalf("IsStaff(%d) = %v, want %v, admins=%v staff=%v", userID, got, want, adminIDs, staffIDs)
		}
		if cfg.IsAdmin(userID) && !cfg.IsStaff(userID) {
			t.Fatalf("admin %d must also be staff", userID)
		}
	})
}

// TestEmptyStaffListAdmitsOnlyAdminsProperty checks that no one but an
// admin gets through when staff.ids is empty.
func TestEmptyStaffListAdmitsOnlyAdminsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := drawIDs(t, "adminID", 0)
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if cfg.IsStaff(userID) != contains(adminIDs, userID) {
			t.Fatalf("with no staff list, IsStaff(%d) must equal IsAdmin", userID)
		}
	})
}
