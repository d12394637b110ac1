package ensemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"FinReplay/pkg/util"
)

// DefaultTemplate is the checkpoint layout produced by the training pipeline.
const DefaultTemplate = "result_risk/{dataset}/potential_model/initial_action_{action}/model_{slot}.onnx"

// ExpandTemplate builds an actionDim x width table from a path template with the
// {dataset}, {action} and {slot} placeholders.
func ExpandTemplate(tmpl, dataset string, actionDim, width int) (Table, error) {
	if !strings.Contains(tmpl, "{action}") || !strings.Contains(tmpl, "{slot}") {
		return nil, fmt.Errorf("checkpoint template %q needs {action} and {slot}", tmpl)
	}
	t := make(Table, actionDim)
	for a := 0; a < actionDim; a++ {
		t[a] = make([]string, width)
		for i := 0; i < width; i++ {
			r := strings.NewReplacer(
				"{dataset}", dataset,
				"{action}", strconv.Itoa(a),
				"{slot}", strconv.Itoa(i),
			)
			t[a][i] = r.Replace(tmpl)
		}
	}
	return t, nil
}

// DiscoverCheckpoints lists checkpoint files in dir in natural order.
func DiscoverCheckpoints(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	if len(exts) == 0 {
		exts = []string{".onnx", ".json"}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, ext := range exts {
			if strings.EqualFold(filepath.Ext(e.Name()), ext) {
				names = append(names, e.Name())
				break
			}
		}
	}
	util.NaturalSort(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

// TableFromDirs builds one table row per directory, taking the first width checkpoints of each.
func TableFromDirs(dirs []string, width int) (Table, error) {
	t := make(Table, len(dirs))
	for a, dir := range dirs {
		files, err := DiscoverCheckpoints(dir)
		if err != nil {
			return nil, err
		}
		if len(files) < width {
			return nil, fmt.Errorf("%s holds %d checkpoints, need %d", dir, len(files), width)
		}
		t[a] = files[:width]
	}
	return t, nil
}
