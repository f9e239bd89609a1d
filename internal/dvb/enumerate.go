package dvb

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// FrontendPaths is one enumerated tuner: the device-node triple plus the
// adapter/frontend numbers it was parsed from.
type FrontendPaths struct {
	Adapter  int
	Frontend int
	FE       string
	DVR      string
	DMX      string
}

// isCharDevice is swapped in tests; /dev/dvb nodes are character devices.
var isCharDevice = func(mode os.FileMode) bool {
	return mode&os.ModeCharDevice != 0
}

// Enumerate walks root (normally /dev/dvb) once, alphabetically, and returns
// a tuner triple for every frontend<N> character device found. Results are
// ordered by adapter then frontend number. Hotplug is not handled; callers
// enumerate at startup.
func Enumerate(root string) ([]FrontendPaths, error) {
	var found []FrontendPaths
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A missing root means no tuners, not a fatal error.
			if path == root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !isCharDevice(info.Mode()) {
			return nil
		}
		var feNr int
		if _, err := fmt.Sscanf(d.Name(), "frontend%d", &feNr); err != nil {
			return nil
		}
		dir := filepath.Dir(path)
		var adaptNr int
		if _, err := fmt.Sscanf(filepath.Base(dir), "adapter%d", &adaptNr); err != nil {
			log.Printf("dvb: enumerate: %s not under an adapter directory, skipping", path)
			return nil
		}
		found = append(found, FrontendPaths{
			Adapter:  adaptNr,
			Frontend: feNr,
			FE:       path,
			DVR:      filepath.Join(dir, fmt.Sprintf("dvr%d", feNr)),
			DMX:      filepath.Join(dir, fmt.Sprintf("demux%d", feNr)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Adapter != found[j].Adapter {
			return found[i].Adapter < found[j].Adapter
		}
		return found[i].Frontend < found[j].Frontend
	})
	log.Printf("dvb: enumerate: root=%s frontends=%d", root, len(found))
	return found, nil
}
