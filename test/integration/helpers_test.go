//go:build integration

package integration_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/scenariokit/scenariocat/internal/config"
	"github.com/scenariokit/scenariocat/internal/resolve"
	"github.com/scenariokit/scenariocat/internal/store"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	HomeDir    string // HOME, holds the user settings and the catalog library
	ProjectDir string // a project with a scenariocat.yaml
}

// setupTestEnv creates isolated temp directories and points HOME at one of
// them so settings and the library checkout are sandboxed.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		HomeDir:    t.TempDir(),
		ProjectDir: t.TempDir(),
	}
	t.Setenv("HOME", env.HomeDir)
	writeFile(t, filepath.Join(env.ProjectDir, "scenariocat.yaml"), "catalog_dirs:\n  - catalogs\n  - shared\n")
	return env
}

// catalogDoc wraps body in a catalog document called name.
func catalogDoc(name, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<OpenSCENARIO>
  <FileHeader revMajor="1" revMinor="2" author="test" date="2024-01-01T00:00:00" description="` + name + `"/>
  <Catalog name="` + name + `">` + body + `</Catalog>
</OpenSCENARIO>
`
}

// setupCatalogs writes a vehicle catalog in XML, a controller catalog in
// YAML and a maneuver catalog whose entries reference both.
func setupCatalogs(t *testing.T, dir string) {
	t.Helper()

	writeFile(t, filepath.Join(dir, "vehicles.xosc"), catalogDoc("vehicles", `
    <ParameterDeclarations>
      <ParameterDeclaration name="max_speed" parameterType="double" value="50"/>
    </ParameterDeclarations>
    <Vehicle name="sedan" vehicleCategory="car" mass_kg="${mass}">
      <ParameterDeclarations>
        <ParameterDeclaration name="mass" parameterType="double" value="1500"/>
      </ParameterDeclarations>
      <Performance maxSpeed="${max_speed}" maxAcceleration="10" maxDeceleration="10"/>
    </Vehicle>
    <Vehicle name="truck" vehicleCategory="truck" mass_kg="12000">
      <Performance maxSpeed="25" maxAcceleration="2" maxDeceleration="6"/>
    </Vehicle>`))

	writeFile(t, filepath.Join(dir, "controllers.yaml"), `OpenSCENARIO:
  FileHeader:
    revMajor: 1
    revMinor: 2
    author: test
    date: "2024-01-01T00:00:00"
    description: controllers
  Catalog:
    name: controllers
    Controller:
      - name: driver
        ParameterDeclarations:
          ParameterDeclaration:
            - name: gain
              parameterType: double
              value: "1"
        Properties:
          Property:
            - name: gain
              value: "${gain}"
`)

	writeFile(t, filepath.Join(dir, "maneuvers.xosc"), catalogDoc("maneuvers", `
    <Maneuver name="overtake">
      <ParameterDeclarations>
        <ParameterDeclaration name="aggression" parameterType="double" value="2"/>
      </ParameterDeclarations>
      <Event name="pull_out" priority="override">
        <Action name="assign">
          <PrivateAction>
            <ControllerAction>
              <AssignControllerAction>
                <CatalogReference catalogName="controllers" entryName="driver">
                  <ParameterAssignments>
                    <ParameterAssignment parameterRef="gain" value="${aggression}"/>
                  </ParameterAssignments>
                </CatalogReference>
              </AssignControllerAction>
            </ControllerAction>
          </PrivateAction>
        </Action>
      </Event>
    </Maneuver>`))
}

// newResolver loads the settings of the project and builds a resolver over
// its search directories.
func newResolver(t *testing.T, env *testEnv) (*resolve.Resolver, []store.Dir) {
	t.Helper()
	if err := config.LoadFrom(env.ProjectDir); err != nil {
		t.Fatalf("loading config: %v", err)
	}
	s := config.Current()

	var dirs []store.Dir
	for _, d := range s.CatalogDirs {
		dirs = append(dirs, store.Dir{Name: filepath.Base(d), Path: d})
	}
	src := store.NewOSSource("")
	return resolve.New(resolve.Config{
		Store:   store.New(src),
		Locator: store.NewLocator(src, dirs, s.CatalogAliases),
		Lenient: !s.StrictBindings,
	}), dirs
}

// writeFile creates a file with the given content, creating parent dirs.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// runGit runs git in dir with a fixed identity.
func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "user.name=test", "-c", "user.email=test@example.com"}, args...)...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %s", path)
	}
}
