package anchor

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLManifestStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLManifestStore(db)
	ctx := context.Background()

	m, err := Materialize("genesis", "xrpl-testnet", nil, []string{hexLeaf("aa")})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	mock.ExpectQuery("SELECT algo, network, prev_root, range_first, range_last, count, root, manifest_hash").
		WillReturnRows(sqlmock.NewRows(nil))

	mock.ExpectQuery("SELECT partition_id, algo, network, prev_root, range_first, range_last, count, root, manifest_hash").
		WillReturnRows(sqlmock.NewRows(nil))

	mock.ExpectExec("INSERT INTO partition_manifests").
		WithArgs(m.PartitionID, 0, m.Algo, m.Network, "", m.Range[0], m.Range[1], m.Count, m.Root, m.ManifestHash, "memo-bytes").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Put(ctx, *m, "memo-bytes"); err != nil {
		t.Errorf("Put: %v", err)
	}
}

func TestSQLManifestStore_Put_RejectsTamperedManifest(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLManifestStore(db)
	m, err := Materialize("genesis", "xrpl-testnet", nil, []string{hexLeaf("aa")})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	m.Count = 999 // tamper after self-binding

	if err := store.Put(context.Background(), *m, "memo"); err == nil {
		t.Error("expected tampered manifest to be rejected before it reaches the database")
	}
}

func TestSQLManifestStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLManifestStore(db)

	mock.ExpectQuery("SELECT algo, network, prev_root, range_first, range_last, count, root, manifest_hash").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = store.Get(context.Background(), "genesis")
	if err != ErrManifestNotFound {
		t.Errorf("Get on missing partition = %v, want ErrManifestNotFound", err)
	}
}
