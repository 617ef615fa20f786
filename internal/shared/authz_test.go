package shared

import "testing"

func TestPermissionGroupsPartitionCatalogue(t *testing.T) {
	seen := make(map[string]string)
	for _, group := range PermissionGroups() {
		if group.Name == "" || group.Category == "" {
			t.Fatalf("group missing name or category: %+v", group)
		}
		for _, code := range group.Codes {
			if prior, ok := seen[code]; ok {
				t.Fatalf("code %s appears in both %q and %q", code, prior, group.Name)
			}
			seen[code] = group.Name
		}
	}
	for _, code := range AllPermissions() {
		if _, ok := seen[code]; !ok {
			t.Fatalf("code %s is not in any group", code)
		}
	}
	if len(seen) != len(AllPermissions()) {
		t.Fatalf("groups carry %d codes, catalogue has %d", len(seen), len(AllPermissions()))
	}
}
