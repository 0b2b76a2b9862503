package gridio

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

// Profile describes how a family of data files is laid out, e.g.
//
//	variables {
//	  u     = "U"
//	  level = "lev"
//	}
//	level_scale = 100
//	time_mean   = true
//	domain {
//	  west = 280
//	  east = 20
//	}
type Profile struct {
	Variables  *profileVariables `hcl:"variables,block"`
	LevelScale *float64          `hcl:"level_scale,optional"`
	TimeIndex  *int              `hcl:"time_index,optional"`
	TimeMean   *bool             `hcl:"time_mean,optional"`
	Domain     *profileDomain    `hcl:"domain,block"`
}

type profileVariables struct {
	U         string `hcl:"u,optional"`
	V         string `hcl:"v,optional"`
	Latitude  string `hcl:"latitude,optional"`
	Longitude string `hcl:"longitude,optional"`
	Level     string `hcl:"level,optional"`
}

type profileDomain struct {
	West float64 `hcl:"west"`
	East float64 `hcl:"east"`
}

// LoadProfile parses an HCL profile file.
func LoadProfile(path string) (Profile, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return Profile{}, fmt.Errorf("failed to parse profile %s: %w", path, diags)
	}
	return decodeProfile(path, file)
}

// ParseProfile parses profile source; filename is used in diagnostics.
func ParseProfile(src []byte, filename string) (Profile, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return Profile{}, fmt.Errorf("failed to parse profile %s: %w", filename, diags)
	}
	return decodeProfile(filename, file)
}

func decodeProfile(name string, file *hcl.File) (Profile, error) {
	var p Profile
	if diags := gohcl.DecodeBody(file.Body, nil, &p); diags.HasErrors() {
		return Profile{}, fmt.Errorf("failed to decode profile %s: %w", name, diags)
	}
	if p.TimeIndex != nil && p.TimeMean != nil && *p.TimeMean {
		return Profile{}, fmt.Errorf("profile %s: time_index and time_mean are mutually exclusive: %w", name, domain.ErrConfiguration)
	}
	if p.TimeIndex != nil && *p.TimeIndex < 0 {
		return Profile{}, fmt.Errorf("profile %s: negative time_index: %w", name, domain.ErrConfiguration)
	}
	return p, nil
}

// Apply layers the profile under opts: fields already set in opts win.
func (p Profile) Apply(opts Options) Options {
	if p.Variables != nil {
		v := &opts.Variables
		if v.U == "" {
			v.U = p.Variables.U
		}
		if v.V == "" {
			v.V = p.Variables.V
		}
		if v.Latitude == "" {
			v.Latitude = p.Variables.Latitude
		}
		if v.Longitude == "" {
			v.Longitude = p.Variables.Longitude
		}
		if v.Level == "" {
			v.Level = p.Variables.Level
		}
	}
	if opts.LevelScale == 0 && p.LevelScale != nil {
		opts.LevelScale = *p.LevelScale
	}
	if opts.TimeIndex == nil && !opts.TimeMean {
		if p.TimeIndex != nil {
			idx := *p.TimeIndex
			opts.TimeIndex = &idx
		}
		if p.TimeMean != nil {
			opts.TimeMean = *p.TimeMean
		}
	}
	if opts.Domain == nil && p.Domain != nil {
		opts.Domain = &domain.LonDomain{West: p.Domain.West, East: p.Domain.East}
	}
	return opts
}
