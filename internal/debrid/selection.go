package debrid

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/samber/lo"
)

// normalize lower-cases s, transliterates it to ASCII and collapses every
// run of non-alphanumerics into a single space.
func normalize(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}), " ")
}

func containsWords(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

func largest(files []File) File {
	return lo.MaxBy(files, func(a, b File) bool { return a.Bytes > b.Bytes })
}

// ChooseFiles picks the files to download for title:
//  1. the largest .mp4 whose path contains the full title,
//  2. else the largest .mp4 containing the title's first word,
//  3. else the largest .mp4,
//  4. else every file.
func ChooseFiles(files []File, title string) []File {
	mp4s := lo.Filter(files, func(f File, _ int) bool { return f.Ext() == "mp4" })
	if len(mp4s) == 0 {
		return files
	}

	norm := normalize(title)
	if matches := lo.Filter(mp4s, func(f File, _ int) bool {
		return containsWords(normalize(f.Path), norm)
	}); len(matches) > 0 {
		return []File{largest(matches)}
	}

	if first, _, _ := strings.Cut(norm, " "); first != "" {
		if matches := lo.Filter(mp4s, func(f File, _ int) bool {
			return containsWords(normalize(f.Path), first)
		}); len(matches) > 0 {
			return []File{largest(matches)}
		}
	}

	return []File{largest(mp4s)}
}

func fileIDs(files []File) []int {
	return lo.Map(files, func(f File, _ int) int { return f.ID })
}
