package sailor

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

// countingFingerprints records how often the persisted list is written.
type countingFingerprints struct {
	MemoryFingerprints
	mu     sync.Mutex
	writes int
}

func (c *countingFingerprints) SetFingerprints(fps []string) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.MemoryFingerprints.SetFingerprints(fps)
}

func (c *countingFingerprints) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type failingFingerprints struct{}

func (failingFingerprints) Fingerprints() ([]string, error) { return nil, errors.New("disk on fire") }
func (failingFingerprints) SetFingerprints([]string) error  { return errors.New("disk on fire") }

func TestTrustStore_AddIsIdempotent(t *testing.T) {
	// WHY: Approving the same certificate twice (two racing connections, or a
	// repeated `trust add`) must leave exactly one normalized entry and must
	// not rewrite the persisted list the second time.
	t.Parallel()
	backing := &countingFingerprints{}
	store := NewTrustStore(backing)

	if err := store.AddFingerprint("ab:cd:ef"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddFingerprint("AB:CD:EF"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddFingerprint("abcdef"); err != nil {
		t.Fatal(err)
	}

	fps, err := backing.Fingerprints()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(fps, []string{"AB:CD:EF"}) {
		t.Errorf("persisted = %v, want [AB:CD:EF]", fps)
	}
	if n := backing.writeCount(); n != 1 {
		t.Errorf("writes = %d, want 1", n)
	}
}

func TestTrustStore_HasFingerprintIgnoresCase(t *testing.T) {
	// WHY: Fingerprints from config files and user input differ in case; the
	// lookup must not.
	t.Parallel()
	store := NewTrustStore(&MemoryFingerprints{})
	if err := store.AddFingerprint("AB:CD"); err != nil {
		t.Fatal(err)
	}

	for _, fp := range []string{"AB:CD", "ab:cd", " Ab:Cd ", "abcd"} {
		ok, err := store.HasFingerprint(fp)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("HasFingerprint(%q) = false, want true", fp)
		}
	}
	ok, err := store.HasFingerprint("AB:CE")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("HasFingerprint(AB:CE) = true, want false")
	}
}

func TestTrustStore_DeduplicatesOnRead(t *testing.T) {
	// WHY: Two processes may both append the same fingerprint to the shared
	// configuration; readers must see a clean set.
	t.Parallel()
	backing := &MemoryFingerprints{}
	if err := backing.SetFingerprints([]string{"aa:bb", "AA:BB", "", "cc:dd", "aabb"}); err != nil {
		t.Fatal(err)
	}
	fps, err := NewTrustStore(backing).Fingerprints()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(fps, []string{"AA:BB", "CC:DD"}) {
		t.Errorf("got %v, want [AA:BB CC:DD]", fps)
	}
}

func TestTrustStore_Remove(t *testing.T) {
	t.Parallel()
	store := NewTrustStore(&MemoryFingerprints{})
	for _, fp := range []string{"01:02", "03:04"} {
		if err := store.AddFingerprint(fp); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.RemoveFingerprint("0102")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("RemoveFingerprint reported not present")
	}
	removed, err = store.RemoveFingerprint("01:02")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("second RemoveFingerprint reported present")
	}
	fps, _ := store.Fingerprints()
	if !slices.Equal(fps, []string{"03:04"}) {
		t.Errorf("got %v, want [03:04]", fps)
	}
}

func TestTrustStore_Errors(t *testing.T) {
	// WHY: A failing persistence layer must surface as an error, never as
	// "not trusted" silently turning into a prompt loop or "trusted".
	t.Parallel()
	store := NewTrustStore(failingFingerprints{})
	if _, err := store.HasFingerprint("AA"); err == nil {
		t.Error("HasFingerprint: expected error")
	}
	if err := store.AddFingerprint("AA"); err == nil {
		t.Error("AddFingerprint: expected error")
	}
	if err := NewTrustStore(&MemoryFingerprints{}).AddFingerprint("  "); err == nil {
		t.Error("AddFingerprint(blank): expected error")
	}
}

func TestTrustStore_ConcurrentAdds(t *testing.T) {
	// WHY: Simultaneous first-use approvals share one store; the persisted set
	// must end with every fingerprint exactly once.
	t.Parallel()
	backing := &MemoryFingerprints{}
	store := NewTrustStore(backing)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fp := []string{"AA:01", "AA:02"}[i%2]
			if err := store.AddFingerprint(fp); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	fps, _ := backing.Fingerprints()
	slices.Sort(fps)
	if !slices.Equal(fps, []string{"AA:01", "AA:02"}) {
		t.Errorf("got %v", fps)
	}
}
