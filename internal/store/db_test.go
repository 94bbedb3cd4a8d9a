package store

import "testing"

func TestNewDBPoolSizing(t *testing.T) {
	// Nothing listens on port 1; the startup ping fails but the pool
	// handle comes back configured.
	db, err := NewDB("postgres://facegate@127.0.0.1:1/facegate?sslmode=disable", 3, 2)
	if db == nil {
		t.Fatal("expected a pool handle even when the ping fails")
	}
	defer db.Close()
	if err == nil {
		t.Error("expected the startup ping to fail against a closed port")
	}
	if got := db.Client.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("got max open conns %d, want 3", got)
	}
}

func TestNewDBPoolDefaults(t *testing.T) {
	db, _ := NewDB("postgres://facegate@127.0.0.1:1/facegate?sslmode=disable", 0, 0)
	if db == nil {
		t.Fatal("expected a pool handle")
	}
	defer db.Close()
	if got := db.Client.Stats().MaxOpenConnections; got != 10 {
		t.Errorf("got max open conns %d, want default 10", got)
	}
}
