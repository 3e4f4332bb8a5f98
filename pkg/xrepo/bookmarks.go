package xrepo

import "strings"

// BookmarkRenamer maps a bookmark name across the repo pair. The second
// return is false when the bookmark has no image on the other side.
type BookmarkRenamer func(name string) (string, bool)

// BookmarkRenamer returns the renamer for this version in the given
// direction. Common pushrebase bookmarks are shared by both repos and pass
// through unchanged; everything else lives under the version's bookmark
// prefix on the large side.
func (c *VersionConfig) BookmarkRenamer(smallToLarge bool) BookmarkRenamer {
	common := make(map[string]bool, len(c.CommonPushrebaseBookmarks))
	for _, name := range c.CommonPushrebaseBookmarks {
		common[name] = true
	}
	prefix := c.BookmarkPrefix

	if smallToLarge {
		return func(name string) (string, bool) {
			if common[name] || prefix == "" {
				return name, true
			}
			return prefix + "/" + name, true
		}
	}
	return func(name string) (string, bool) {
		if common[name] {
			return name, true
		}
		if prefix == "" {
			return name, true
		}
		if rest, ok := strings.CutPrefix(name, prefix+"/"); ok {
			return rest, true
		}
		return "", false
	}
}
