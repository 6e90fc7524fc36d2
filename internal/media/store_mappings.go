package media

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hbomb79/Shiori/internal/database"
)

// MappingStore persists the symmetric ID mappings between items which
// represent the same series on different services.
type MappingStore struct{}

func NewMappingStore() *MappingStore {
	return &MappingStore{}
}

// SavePair stores the mapping between the two items in both directions,
// ignoring directions which are already present.
func (store *MappingStore) SavePair(db database.Queryable, primaryID uuid.UUID, secondaryID uuid.UUID) error {
	pairs := []IDMapping{
		{ID: uuid.New(), PrimaryItemID: primaryID, SecondaryItemID: secondaryID},
		{ID: uuid.New(), PrimaryItemID: secondaryID, SecondaryItemID: primaryID},
	}

	_, err := db.NamedExec(`
		INSERT INTO media_id_mappings(id, primary_item_id, secondary_item_id)
		VALUES(:id, :primary_item_id, :secondary_item_id)
		ON CONFLICT(primary_item_id, secondary_item_id) DO NOTHING
	`, pairs)
	if err != nil {
		return fmt.Errorf("failed to insert ID mapping pair (%s <-> %s): %w", primaryID, secondaryID, err)
	}

	return nil
}

// RelatedIDs returns, for the given item, the service-local IDs of this
// series on every other linked service.
func (store *MappingStore) RelatedIDs(db database.Queryable, itemID uuid.UUID) (map[ListService]string, error) {
	items, err := store.RelatedItems(db, itemID)
	if err != nil {
		return nil, err
	}

	out := make(map[ListService]string, len(items))
	for _, item := range items {
		out[item.Service] = item.ServiceID
	}

	return out, nil
}

// RelatedItems returns the full item rows linked to the given item via
// ID mappings.
func (store *MappingStore) RelatedItems(db database.Queryable, itemID uuid.UUID) ([]*Item, error) {
	var items []*Item
	err := db.Select(&items, `
		SELECT media_items.* FROM media_id_mappings
		INNER JOIN media_items
		ON media_items.id = media_id_mappings.secondary_item_id
		WHERE media_id_mappings.primary_item_id = $1
	`, itemID)
	if err != nil {
		return nil, err
	}

	return items, nil
}
