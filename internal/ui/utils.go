package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/raster"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

// input is shared by every prompt so buffered keystrokes are never lost.
var (
	input       = bufio.NewReader(os.Stdin)
	inputClosed bool
)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	fmt.Printf("%s\nWarning:%s\n", ColorYellow, ColorReset)
	fmt.Printf("%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	fmt.Printf("\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	fmt.Printf("\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	fmt.Printf("%s%s%s", ColorBlue, message, ColorReset)
}

// ReadString reads a trimmed line from stdin.
func ReadString(prompt string) string {
	PrintInfo(prompt)
	line, err := input.ReadString('\n')
	if err == io.EOF && line == "" {
		inputClosed = true
	}
	if err != nil && err != io.EOF {
		return ""
	}
	return strings.TrimSpace(line)
}

// ReadStringDefault returns def when the answer is empty.
func ReadStringDefault(prompt, def string) string {
	value := ReadString(fmt.Sprintf("%s [%s]: ", prompt, def))
	if value == "" {
		return def
	}
	return value
}

// ReadInt reads an integer from stdin with validation
func ReadInt(prompt string, min, max int) (int, error) {
	text := ReadString(prompt)
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", text)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadFloat reads a number, falling back to def on an empty answer.
func ReadFloat(prompt string, def float64) (float64, error) {
	text := ReadString(fmt.Sprintf("%s [%s]: ", prompt, strconv.FormatFloat(def, 'f', -1, 64)))
	if text == "" {
		return def, nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", text)
	}
	return value, nil
}

// ReadDate reads a YYYY-MM-DD date, falling back to def on an empty answer.
func ReadDate(prompt string, def time.Time) (time.Time, error) {
	text := ReadString(fmt.Sprintf("%s (YYYY-MM-DD) [%s]: ", prompt, def.Format(raster.DateLayout)))
	if text == "" {
		return def, nil
	}
	if text == "today" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	date, err := time.Parse(raster.DateLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", text)
	}
	return date, nil
}

// ReadDateRange reads a start date and an exclusive end date.
func ReadDateRange(defStart, defEnd time.Time) (time.Time, time.Time, error) {
	start, err := ReadDate("Enter the start date", defStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ReadDate("Enter the end date (exclusive)", defEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

// ReadYesNo returns true for answers starting with y.
func ReadYesNo(prompt string) bool {
	answer := strings.ToLower(ReadString(prompt + " (y/N): "))
	return strings.HasPrefix(answer, "y")
}

// ListFiles returns the sorted names in dir whose extension is one of exts.
// Directories are listed when dirs is true.
func ListFiles(dir string, dirs bool, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading folder %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			if dirs {
				names = append(names, entry.Name())
			}
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range exts {
			if ext == want {
				names = append(names, entry.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// SelectFile lists the matching files of dir and returns the path of the
// chosen one.
func SelectFile(title, dir string, dirs bool, exts ...string) (string, error) {
	names, err := ListFiles(dir, dirs, exts...)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no files found in %s", dir)
	}

	fmt.Printf("%s\n%s:%s\n", ColorGreen, title, ColorReset)
	for i, name := range names {
		fmt.Printf("%s%d. %s%s\n", ColorGreen, i+1, name, ColorReset)
	}

	choice, err := ReadInt("Enter the number of your choice: ", 1, len(names))
	if err != nil {
		return "", err
	}
	selected := names[choice-1]
	fmt.Printf("%sYou selected: %s%s\n", ColorGreen, selected, ColorReset)
	return filepath.Join(dir, selected), nil
}
