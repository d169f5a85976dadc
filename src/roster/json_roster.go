// Package roster loads the identities eligible to vote from a JSON file in
// the data directory.
package roster

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const jsonRosterPath = "roster.json"

// Voter is an entry of the roster. Voters without a password are eligible but
// cannot log in through the built-in sessions.
type Voter struct {
	ID       string `json:"voter_id"`
	Password string `json:"password,omitempty"`
}

// JSONRoster is used to provide roster persistence on disk in the form of a
// JSON file.
type JSONRoster struct {
	l    sync.Mutex
	path string
}

// NewJSONRoster creates a new JSONRoster with reference to a base directory
// where the JSON file resides.
func NewJSONRoster(base string) *JSONRoster {
	return &JSONRoster{
		path: filepath.Join(base, jsonRosterPath),
	}
}

// Path returns the location of the JSON file.
func (j *JSONRoster) Path() string {
	return j.path
}

// Voters parses the underlying JSON file. It returns nil and no error if the
// file is empty.
func (j *JSONRoster) Voters() ([]*Voter, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var voters []*Voter
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&voters); err != nil {
		return nil, err
	}

	return cleanseVoters(voters), nil
}

// cleanseVoters standardises identities to the upper case form printed on
// voter cards, and drops blank entries.
func cleanseVoters(voters []*Voter) []*Voter {
	res := make([]*Voter, 0, len(voters))
	for _, v := range voters {
		if v == nil {
			continue
		}
		v.ID = strings.ToUpper(strings.TrimSpace(v.ID))
		if v.ID == "" {
			continue
		}
		res = append(res, v)
	}
	return res
}

// Write persists a roster to the JSON file.
func (j *JSONRoster) Write(voters []*Voter) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(voters); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf.Bytes(), 0600)
}

// Split returns the eligible identities and the login table of a roster.
func Split(voters []*Voter) ([]string, map[string]string) {
	ids := make([]string, 0, len(voters))
	creds := make(map[string]string)
	for _, v := range voters {
		ids = append(ids, v.ID)
		if v.Password != "" {
			creds[v.ID] = v.Password
		}
	}
	return ids, creds
}
