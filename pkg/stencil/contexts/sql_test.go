package contexts

import (
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *SQLContext {
	t.Helper()
	c, err := OpenSQL("sqlite::memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.Execute(`
		CREATE TABLE planets (name TEXT, moons INTEGER);
		INSERT INTO planets VALUES ('Mercury', 0);
		INSERT INTO planets VALUES ('Earth', 1);
		INSERT INTO planets VALUES ('Mars', 2)`); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSplitDSN(t *testing.T) {
	tests := []struct {
		dsn    string
		driver string
		source string
	}{
		{"sqlite::memory:", "sqlite", ":memory:"},
		{"sqlite:data.db", "sqlite", "data.db"},
		{"mysql://user:pw@/db", "mysql", "user:pw@/db"},
		{"postgres://host/db", "postgres", "postgres://host/db"},
		{"plain.db", "sqlite", "plain.db"},
	}
	for _, tt := range tests {
		driver, source := splitDSN(tt.dsn)
		if driver != tt.driver || source != tt.source {
			t.Errorf("splitDSN(%q): got %s/%s, want %s/%s", tt.dsn, driver, source, tt.driver, tt.source)
		}
	}
}

func TestSQLAccepts(t *testing.T) {
	c := openTestDB(t)
	if !c.Accepts("sql") || !c.Accepts("SQL") {
		t.Error("expected sql accepted")
	}
	if c.Accepts("py") {
		t.Error("expected py rejected")
	}
}

func TestSQLText(t *testing.T) {
	c := openTestDB(t)
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 1", "2"},
		{"(SELECT count(*) FROM planets)", "3"},
		{"SELECT name FROM planets WHERE moons = 1", "Earth"},
	}
	for _, tt := range tests {
		got, err := c.Text(tt.expr)
		if err != nil {
			t.Fatalf("Text(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("Text(%q): expected %q, got %q", tt.expr, tt.want, got)
		}
	}

	if _, err := c.Text("SELECT nope FROM missing"); err == nil {
		t.Error("expected an error for a bad query")
	}
}

func TestSQLTest(t *testing.T) {
	c := openTestDB(t)
	ok, err := c.Test("(SELECT count(*) FROM planets) = 3")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected a true test")
	}
	ok, err = c.Test("(SELECT count(*) FROM planets) = 99")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected a false test")
	}
}

func TestSQLAssign(t *testing.T) {
	c := openTestDB(t)
	if err := c.Assign("total", "(SELECT sum(moons) FROM planets)"); err != nil {
		t.Fatal(err)
	}
	got, err := c.Text("total")
	if err != nil {
		t.Fatal(err)
	}
	if got != "3" {
		t.Errorf("expected 3, got %q", got)
	}

	// A query expression becomes a view.
	if err := c.Assign("mooned", "SELECT name FROM planets WHERE moons > 0"); err != nil {
		t.Fatal(err)
	}
	count, err := c.Text("(SELECT count(*) FROM mooned)")
	if err != nil {
		t.Fatal(err)
	}
	if count != "2" {
		t.Errorf("expected 2 rows in the view, got %q", count)
	}

	// Re-assigning the same name replaces the view definition.
	if err := c.Assign("mooned", "SELECT name FROM planets WHERE moons > 1"); err != nil {
		t.Fatal(err)
	}
	count, err = c.Text("(SELECT count(*) FROM mooned)")
	if err != nil {
		t.Fatal(err)
	}
	if count != "1" {
		t.Errorf("expected the replaced view to hold 1 row, got %q", count)
	}
}

func TestSQLLoop(t *testing.T) {
	c := openTestDB(t)
	has, err := c.Begin("planet", "SELECT name, moons FROM planets ORDER BY moons")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("expected rows")
	}
	var names []string
	for {
		name, err := c.Text("planet.name")
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
		more, err := c.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			break
		}
	}
	if err := c.End(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names, ","); got != "Mercury,Earth,Mars" {
		t.Errorf("expected Mercury,Earth,Mars, got %s", got)
	}
}

func TestSQLLoopBareTable(t *testing.T) {
	c := openTestDB(t)
	has, err := c.Begin("p", "planets")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("expected rows from the bare table name")
	}
	if _, err := c.Text("p.nosuch"); err == nil {
		t.Error("expected an error for an unknown column")
	}
	if err := c.End(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Next(); err == nil {
		t.Error("expected an error advancing without a loop")
	}
}

func TestSQLSavepoints(t *testing.T) {
	c := openTestDB(t)
	if err := c.Enter(""); err != nil {
		t.Fatal(err)
	}
	if err := c.Execute("INSERT INTO planets VALUES ('Venus', 0)"); err != nil {
		t.Fatal(err)
	}
	if err := c.Exit(); err != nil {
		t.Fatal(err)
	}
	got, err := c.Text("(SELECT count(*) FROM planets)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "4" {
		t.Errorf("expected the released savepoint to keep the insert, got %q", got)
	}
	if err := c.Exit(); err == nil {
		t.Error("expected an error exiting without a frame")
	}
	if err := c.Enter("scoped"); err == nil {
		t.Error("expected enter with an expression to be unsupported")
	}
}

func TestSQLInteract(t *testing.T) {
	c := openTestDB(t)
	out, err := c.Interact("SELECT name FROM planets WHERE moons = 2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Mars") {
		t.Errorf("expected Mars in %q", out)
	}
}
