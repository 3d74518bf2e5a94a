package workflow

import "sort"

// LigandsField is the field of a parsed structure listing its candidate ligands.
const LigandsField = "ligands"

// Ligands returns the candidate ligands exposed by the parsed content of pd, if any.
//
// The candidates are read from the top-level "ligands" field, either an array of names or an object keyed by
// name.
func Ligands(pd PipeData) []string {
	doc, ok := pd.Document()
	if !ok {
		return nil
	}

	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil
	}

	switch ligands := obj[LigandsField].(type) {
	case []interface{}:
		res := make([]string, 0, len(ligands))
		for _, l := range ligands {
			if name, ok := l.(string); ok && name != "" {
				res = append(res, name)
			}
		}

		return res
	case map[string]interface{}:
		res := make([]string, 0, len(ligands))
		for name := range ligands {
			res = append(res, name)
		}
		sort.Strings(res)

		return res
	default:
		return nil
	}
}

// GetLigandNames returns every candidate ligand found in pds, in first-seen order and without duplicates.
func GetLigandNames(pds []PipeData) []string {
	var res []string
	seen := map[string]struct{}{}
	for _, pd := range pds {
		for _, name := range Ligands(pd) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			res = append(res, name)
		}
	}

	return res
}

// SelectLigand marks name as the selected ligand on every pipe data listing it, and clears the selection on
// every other pipe data exposing candidates. Only the last call matters.
func SelectLigand(pds []PipeData, name string) []PipeData {
	res := make([]PipeData, len(pds))
	for i, pd := range pds {
		ligands := Ligands(pd)
		switch {
		case len(ligands) == 0:
			res[i] = pd
		case contains(ligands, name):
			res[i] = pd.WithSelectedLigand(name)
		default:
			res[i] = pd.WithSelectedLigand("")
		}
	}

	return res
}

// SelectedLigand returns the ligand currently selected in pds.
func SelectedLigand(pds []PipeData) (string, bool) {
	for _, pd := range pds {
		if pd.SelectedLigand != "" {
			return pd.SelectedLigand, true
		}
	}

	return "", false
}

// AutoSelectLigand selects the only candidate when pds exposes exactly one ligand. Otherwise pds is returned
// unchanged and the user has to choose.
func AutoSelectLigand(pds []PipeData) []PipeData {
	names := GetLigandNames(pds)
	if len(names) != 1 {
		return pds
	}

	return SelectLigand(pds, names[0])
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}

	return false
}
