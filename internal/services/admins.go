package services

import "context"

// StaticAdminDirectory trusts a fixed list of administrator ids from config.
type StaticAdminDirectory struct {
	ids map[string]struct{}
}

func NewStaticAdminDirectory(ids []string) *StaticAdminDirectory {
	d := &StaticAdminDirectory{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			d.ids[id] = struct{}{}
		}
	}
	return d
}

func (d *StaticAdminDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	_, ok := d.ids[userID]
	return ok, nil
}
