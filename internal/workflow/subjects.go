package workflow

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"caravel/internal/faults"
)

// LoadSubjects reads the optional subject allow-list: one identifier per
// line, with blank lines and # comments ignored. An empty path yields nil,
// which disables the check.
func LoadSubjects(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "workflow", "subjects", "open subjects file", err)
	}
	defer file.Close()

	subjects := []string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		subjects = append(subjects, strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "workflow", "subjects", fmt.Sprintf("read %s", path), err)
	}
	return subjects, nil
}
