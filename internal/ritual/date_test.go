package ritual

import (
	"testing"
	"time"
)

func TestParseDateRoundTrip(t *testing.T) {
	t.Parallel()
	d, err := ParseDate("2024-03-10")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Year != 2024 || d.Month != time.March || d.Day != 10 {
		t.Fatalf("unexpected date: %+v", d)
	}
	if got := d.String(); got != "2024-03-10" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "2024-3-10", "10/03/2024", "2024-13-01", "not-a-date"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q): expected error", s)
		}
	}
}

func TestDateScan(t *testing.T) {
	t.Parallel()
	var d Date
	if err := d.Scan("2025-01-02"); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if d.String() != "2025-01-02" {
		t.Fatalf("scanned %q", d.String())
	}
	if err := d.Scan([]byte("2025-02-03")); err != nil {
		t.Fatalf("Scan([]byte): %v", err)
	}
	if d.String() != "2025-02-03" {
		t.Fatalf("scanned %q", d.String())
	}
	if err := d.Scan(42); err == nil {
		t.Fatal("Scan(int): expected error")
	}
}

func TestReminderMessage(t *testing.T) {
	t.Parallel()
	d := Date{Year: 2024, Month: time.March, Day: 10}
	got := ReminderMessage("Ana", "Meditar", d, "America/Fortaleza")
	want := `Ana, hora de revisar seu ritual de 10/03: "Meditar". Marque se concluiu ou não.`
	if got != want {
		t.Fatalf("ReminderMessage = %q, want %q", got, want)
	}

	anon := ReminderMessage("", "Meditar", d, "UTC")
	if anon == got {
		t.Fatal("expected no name prefix for empty display name")
	}
}
