package types

// Refspec identifies a trackable content reference. An empty Remote means
// the branch lives in the local store only.
type Refspec struct {
	Remote string `toml:"remote,omitempty" yaml:"remote,omitempty"`
	Branch string `toml:"branch" yaml:"branch"`
}

func (r Refspec) String() string {
	if r.Remote == "" {
		return r.Branch
	}
	return r.Remote + ":" + r.Branch
}

func (r Refspec) IsZero() bool {
	return r.Remote == "" && r.Branch == ""
}
