package roster

import (
	"os"
	"reflect"
	"testing"
)

func TestJSONRoster(t *testing.T) {
	j := NewJSONRoster(t.TempDir())

	if _, err := j.Voters(); !os.IsNotExist(err) {
		t.Fatalf("reading a missing roster should fail with ErrNotExist, not %v", err)
	}

	voters := []*Voter{
		{ID: "VOID001", Password: "pass001"},
		{ID: " void002 "},
		{ID: ""},
	}
	if err := j.Write(voters); err != nil {
		t.Fatal(err)
	}

	got, err := j.Voters()
	if err != nil {
		t.Fatal(err)
	}

	expected := []*Voter{
		{ID: "VOID001", Password: "pass001"},
		{ID: "VOID002"},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("voters should be %+v, not %+v", expected, got)
	}

	ids, creds := Split(got)
	if !reflect.DeepEqual(ids, []string{"VOID001", "VOID002"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if !reflect.DeepEqual(creds, map[string]string{"VOID001": "pass001"}) {
		t.Fatalf("unexpected credentials %v", creds)
	}
}

func TestEmptyRoster(t *testing.T) {
	j := NewJSONRoster(t.TempDir())
	if err := os.WriteFile(j.Path(), []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}

	voters, err := j.Voters()
	if err != nil {
		t.Fatal(err)
	}
	if voters != nil {
		t.Fatalf("an empty file should hold no voters, got %v", voters)
	}
}
