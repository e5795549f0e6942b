package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/shmlog/internal/cli"
)

func Test_Print_Config_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "effective_cwd="+c.Dir)
	cli.AssertContains(t, stdout, "dir=/dev/shm/shmlog")
	cli.AssertContains(t, stdout, "class=Log")
	cli.AssertContains(t, stdout, "poll_interval=10ms")
	cli.AssertContains(t, stdout, "(defaults only)")
	cli.AssertNotContains(t, stdout, "metrics_addr=")
}

func Test_Print_Config_From_Config_File_With_Comments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".shmlog.json"), `{
		// chunks live next to the project
		"dir": "chunks",
		"class": "Audit",
		"metrics_addr": ":2112",
	}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "dir="+filepath.Join(c.Dir, "chunks"))
	cli.AssertContains(t, stdout, "class=Audit")
	cli.AssertContains(t, stdout, "metrics_addr=:2112")
	cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, ".shmlog.json"))
}

func Test_Print_Config_Global_Config_When_XDG_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdg := filepath.Join(c.Dir, "xdg")
	c.Env["XDG_CONFIG_HOME"] = xdg
	writeFile(t, filepath.Join(xdg, "shmlog", "config.json"), `{"poll_interval": "250ms"}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "poll_interval=250ms")
	cli.AssertContains(t, stdout, "global_config="+filepath.Join(xdg, "shmlog", "config.json"))
}

func Test_Print_Config_Dir_Flag_Overrides_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, "custom.json"), `{"dir": "from-file"}`)

	stdout := c.MustRun("-c", "custom.json", "-n", "from-flag", "print-config")
	cli.AssertContains(t, stdout, "dir="+filepath.Join(c.Dir, "from-flag"))

	stdout = c.MustRun("--config=custom.json", "print-config")
	cli.AssertContains(t, stdout, "dir="+filepath.Join(c.Dir, "from-file"))
}

func Test_Config_Errors_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stderr := c.MustFail("-c", "nonexistent.json", "print-config")
	cli.AssertContains(t, stderr, "config file not found")

	stderr = c.MustFail("--dir=", "print-config")
	cli.AssertContains(t, stderr, "dir cannot be empty")

	writeFile(t, filepath.Join(c.Dir, ".shmlog.json"), `{invalid json}`)

	stderr = c.MustFail("print-config")
	cli.AssertContains(t, stderr, "invalid config file")
}
