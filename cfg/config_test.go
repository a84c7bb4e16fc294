package cfg

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type serverOptions struct {
	Addr   string `cfg:"addr" def:":8080"`
	Prefix string `cfg:"prefix"`
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	So(os.WriteFile(path, []byte(content), 0644), ShouldBeNil)
	return path
}

func TestNewConfig(t *testing.T) {
	Convey("NewConfig", t, func() {
		dir := t.TempDir()

		for _, c := range []struct {
			name    string
			content string
		}{
			{"app.yaml", "server:\n  prefix: /api\n"},
			{"app.json", `{"server": {"prefix": "/api"}}`},
			{"app.toml", "[server]\nprefix = \"/api\"\n"},
		} {
			Convey(c.name, func() {
				conf, err := NewConfig(writeFile(dir, c.name, c.content))
				So(err, ShouldBeNil)

				var opts serverOptions
				So(conf.Sub("server").ConvertTo(&opts), ShouldBeNil)
				So(opts.Prefix, ShouldEqual, "/api")
				So(opts.Addr, ShouldEqual, ":8080")
			})
		}

		Convey("unsupported extension", func() {
			_, err := NewConfig(writeFile(dir, "app.ini", "a=b"))
			So(err, ShouldNotBeNil)
		})

		Convey("missing file", func() {
			_, err := NewConfig(filepath.Join(dir, "missing.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("malformed file", func() {
			_, err := NewConfig(writeFile(dir, "bad.json", "{"))
			So(err, ShouldNotBeNil)
		})
	})
}
