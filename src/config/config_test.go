package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func TestDefaultRoster(t *testing.T) {
	roster := DefaultRoster()
	if len(roster) != 15 || roster[0] != "VOID001" || roster[14] != "VOID015" {
		t.Fatalf("unexpected default roster %v", roster)
	}

	expected := map[string]string{
		"VOID001": "pass001",
		"VOID002": "pass002",
		"VOID003": "pass003",
		"VOID004": "pass004",
		"VOID005": "pass005",
	}
	if creds := DefaultCredentials(); !reflect.DeepEqual(creds, expected) {
		t.Fatalf("credentials should be %v, not %v", expected, creds)
	}
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/bg")

	if expected := filepath.Join("/tmp/bg", DefaultBadgerFile); conf.DatabaseDir != expected {
		t.Fatalf("DatabaseDir should be %s, not %s", expected, conf.DatabaseDir)
	}

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/var/db" {
		t.Fatalf("an explicit DatabaseDir should be kept, got %s", conf.DatabaseDir)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.DebugLevel,
	}
	for in, expected := range cases {
		if l := LogLevel(in); l != expected {
			t.Fatalf("LogLevel(%q) should be %v, not %v", in, expected, l)
		}
	}
}

func TestLogFile(t *testing.T) {
	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogFile = filepath.Join(t.TempDir(), "ballotguard.log")

	logger := conf.Logger()
	if logger.Data["prefix"] != "ballotguard" {
		t.Fatalf("prefix should be ballotguard, not %v", logger.Data["prefix"])
	}
	if n := len(logger.Logger.Hooks[logrus.InfoLevel]); n != 1 {
		t.Fatalf("there should be 1 info hook, not %d", n)
	}
	if n := len(logger.Logger.Hooks[logrus.DebugLevel]); n != 0 {
		t.Fatalf("there should be no debug hook, not %d", n)
	}
}

func TestNormalizeCredentials(t *testing.T) {
	dir := t.TempDir()
	toml := "roster = [\"VOID001\", \"card-7\"]\n\n[credentials]\nVOID001 = \"pass001\"\nCARD-7 = \"seven\"\nVOID042 = \"pass042\"\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile+".toml"), []byte(toml), 0600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigName(DefaultConfigFile)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		t.Fatal(err)
	}
	if _, ok := conf.Credentials["VOID001"]; ok {
		t.Fatalf("the config file is expected to lose the case of credential keys, got %v", conf.Credentials)
	}

	conf.NormalizeCredentials()

	expected := map[string]string{
		"VOID001": "pass001",
		"card-7":  "seven",
		"VOID042": "pass042",
	}
	if !reflect.DeepEqual(conf.Credentials, expected) {
		t.Fatalf("credentials should be %v, not %v", expected, conf.Credentials)
	}
}
