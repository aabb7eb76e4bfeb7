// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/winebuild/internal/plan"
	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

// Install root layout after a successful run:
//
//	installDir/
//	  .winebuild.json   # build record
//	  bin/
//	  lib/
//	  lib32 -> lib      # when a 32-bit leg was built
const recordFile = ".winebuild.json"

// Record describes the build that produced an install root.
type Record struct {
	RunID     string          `json:"run_id"`
	Variant   plan.Variant    `json:"variant"`
	Version   version.Version `json:"version"`
	Pinned    bool            `json:"pinned"`
	Patches   []string        `json:"patches"`
	Legs      []arch.Arch     `json:"legs"`
	BuildTime time.Time       `json:"build_time"`
}

// LoadRecord reads the build record of installDir.
func LoadRecord(installDir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(installDir, recordFile))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func saveRecord(installDir string, r *Record) error {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(installDir, recordFile), data, 0o644)
}
