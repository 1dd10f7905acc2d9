package admindb

import (
	"context"
	"path"

	"github.com/restic/kvrecover/internal/bundle"
	"github.com/restic/kvrecover/internal/errors"
	"github.com/restic/kvrecover/internal/placement"
)

// TopologyFile is the name of the document holding the complete topology of
// a store in an exported bundle.
const TopologyFile = "topology.json"

// Export returns the placement descriptions of all stores as zip archive.
// For every store there is <store>/topology.json and one
// <store>/<hostname>.json per storage node host, holding only the storage
// nodes of that host.
func (db *DB) Export(ctx context.Context) ([]byte, error) {
	stores, err := db.Stores(ctx)
	if err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return nil, errors.Configuration("admin database holds no stores")
	}

	docs := make(map[string][]byte)
	for _, store := range stores {
		d, err := db.Placement(ctx, store)
		if err != nil {
			return nil, err
		}

		buf, err := d.Encode()
		if err != nil {
			return nil, err
		}
		docs[path.Join(store, TopologyFile)] = buf

		for host, hd := range byHost(d) {
			buf, err := hd.Encode()
			if err != nil {
				return nil, err
			}
			docs[path.Join(store, host+".json")] = buf
		}
	}

	return bundle.MarshalZip(docs)
}

// ExportFile writes the export of the catalog to target.
func (db *DB) ExportFile(ctx context.Context, target string) error {
	buf, err := db.Export(ctx)
	if err != nil {
		return err
	}
	return bundle.WriteAtomic(target, buf)
}

// byHost splits d into one description per host.
func byHost(d *placement.Description) map[string]*placement.Description {
	hosts := make(map[string]*placement.Description)
	for _, sn := range d.StorageNodes {
		hd, ok := hosts[sn.Hostname]
		if !ok {
			hd = &placement.Description{StoreName: d.StoreName}
			hosts[sn.Hostname] = hd
		}
		hd.StorageNodes = append(hd.StorageNodes, sn)
	}
	return hosts
}
