package types

import "testing"

func baseVolume() *Volume {
	return &Volume{
		UUID:        "3f8e1a52-0000-4000-8000-000000000001",
		ProjectName: DefaultProject,
		Name:        "volume-test",
		Size:        4,
		NumReplicas: 3,
		ACL:         ACL{Values: []string{ACLAllowNone}},
		State:       VolumeStateAvailable,
	}
}

func TestComputeVolumeETagStable(t *testing.T) {
	a := baseVolume()
	b := baseVolume()

	if ComputeVolumeETag(a) != ComputeVolumeETag(b) {
		t.Error("identical volumes produced different fingerprints")
	}
}

func TestComputeVolumeETagExcludesItself(t *testing.T) {
	v := baseVolume()
	before := ComputeVolumeETag(v)

	v.ETag = before
	if got := ComputeVolumeETag(v); got != before {
		t.Errorf("fingerprint changed after setting ETag field: %s != %s", got, before)
	}
}

func TestComputeVolumeETagChangesWithMutableFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Volume)
	}{
		{"size", func(v *Volume) { v.Size = 8 }},
		{"acl", func(v *Volume) { v.ACL = ACL{Values: []string{"hostnqn1"}} }},
		{"state", func(v *Volume) { v.State = VolumeStateFailed }},
		{"replicas", func(v *Volume) { v.NumReplicas = 2 }},
		{"compression", func(v *Volume) { v.Compression = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseVolume()
			before := ComputeVolumeETag(v)
			tt.mutate(v)
			if ComputeVolumeETag(v) == before {
				t.Errorf("fingerprint unchanged after mutating %s", tt.name)
			}
		})
	}
}

func TestComputeVolumeETagIgnoresUUID(t *testing.T) {
	a := baseVolume()
	b := baseVolume()
	b.UUID = "3f8e1a52-0000-4000-8000-000000000002"

	// The UUID is immutable, so it is not part of the mutable field set.
	if ComputeVolumeETag(a) != ComputeVolumeETag(b) {
		t.Error("fingerprint depends on the immutable UUID")
	}
}

func TestACLContains(t *testing.T) {
	acl := ACL{Values: []string{"hostnqn1", "hostnqn2"}}

	if !acl.Contains("hostnqn1") {
		t.Error("Contains(hostnqn1) = false, want true")
	}
	if acl.Contains("hostnqn3") {
		t.Error("Contains(hostnqn3) = true, want false")
	}
	if (ACL{}).Contains("hostnqn1") {
		t.Error("empty ACL contains hostnqn1")
	}
}
