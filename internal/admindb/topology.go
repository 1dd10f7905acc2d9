package admindb

import (
	"context"
	"database/sql"

	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/placement"
)

// Stores returns the names of all stores in the catalog, sorted.
func (db *DB) Stores(ctx context.Context) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT name FROM stores ORDER BY name")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WithStack(err)
		}
		names = append(names, name)
	}
	return names, errors.WithStack(rows.Err())
}

// Save replaces the topology of the store described by d.
func (db *DB) Save(ctx context.Context, d *placement.Description) error {
	if err := d.Validate(); err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	exec := func(query string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = tx.ExecContext(ctx, query, args...)
	}

	exec("DELETE FROM stores WHERE name = ?", d.StoreName)
	exec("INSERT INTO stores (name) VALUES (?)", d.StoreName)
	for _, sn := range d.StorageNodes {
		exec("INSERT INTO storage_nodes (store, id, hostname, root_dir) VALUES (?, ?, ?, ?)",
			d.StoreName, sn.ID, sn.Hostname, sn.RootDir)
		for _, rn := range sn.ReplicaNodes {
			exec("INSERT INTO replica_nodes (store, sn_id, name, storage_dir) VALUES (?, ?, ?, ?)",
				d.StoreName, sn.ID, rn.Name, rn.StorageDir)
		}
		for _, a := range sn.Admins {
			exec("INSERT INTO admins (store, sn_id, name) VALUES (?, ?, ?)",
				d.StoreName, sn.ID, a.Name)
		}
	}
	if err != nil {
		return errors.Wrapf(err, "save topology of %v", d.StoreName)
	}

	return errors.WithStack(tx.Commit())
}

// Placement returns the topology of store.
func (db *DB) Placement(ctx context.Context, store string) (*placement.Description, error) {
	d := &placement.Description{StoreName: store}

	rows, err := db.db.QueryContext(ctx,
		"SELECT id, hostname, root_dir FROM storage_nodes WHERE store = ? ORDER BY id", store)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for rows.Next() {
		var sn placement.StorageNode
		if err := rows.Scan(&sn.ID, &sn.Hostname, &sn.RootDir); err != nil {
			_ = rows.Close()
			return nil, errors.WithStack(err)
		}
		d.StorageNodes = append(d.StorageNodes, sn)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errors.WithStack(err)
	}
	_ = rows.Close()

	if len(d.StorageNodes) == 0 {
		return nil, errors.Configuration("store %v has no storage nodes in the admin database", store)
	}

	for i := range d.StorageNodes {
		sn := &d.StorageNodes[i]

		err := db.query(ctx, func(rows *sql.Rows) error {
			var rn placement.ReplicaNode
			if err := rows.Scan(&rn.Name, &rn.StorageDir); err != nil {
				return err
			}
			sn.ReplicaNodes = append(sn.ReplicaNodes, rn)
			return nil
		}, "SELECT name, storage_dir FROM replica_nodes WHERE store = ? AND sn_id = ? ORDER BY name", store, sn.ID)
		if err != nil {
			return nil, err
		}

		err = db.query(ctx, func(rows *sql.Rows) error {
			var a placement.Admin
			if err := rows.Scan(&a.Name); err != nil {
				return err
			}
			sn.Admins = append(sn.Admins, a)
			return nil
		}, "SELECT name FROM admins WHERE store = ? AND sn_id = ? ORDER BY name", store, sn.ID)
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

// query runs fn for every row returned by the query.
func (db *DB) query(ctx context.Context, fn func(*sql.Rows) error, query string, args ...interface{}) error {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(rows.Err())
}
