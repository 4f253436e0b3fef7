package main

import (
	"fmt"

	"github.com/graymedia/mediaserver/internal/infrastructure/config"
	"github.com/graymedia/mediaserver/internal/services/contentdirectory"
)

var itemClasses = map[string]string{
	"audio": contentdirectory.ClassAudioItem,
	"video": contentdirectory.ClassVideoItem,
	"image": contentdirectory.ClassImageItem,
}

// buildCatalog seeds a catalog from media.library. Folders become
// containers below the root, in configuration order.
//
// Parameters:
//   - library: Top-level folders from the configuration
//
// Returns:
//   - *contentdirectory.Catalog: Populated catalog
//   - error: If an item has an unknown class
func buildCatalog(library []config.LibraryFolder) (*contentdirectory.Catalog, error) {
	catalog := contentdirectory.NewCatalog()
	if err := addFolders(catalog, contentdirectory.RootID, library); err != nil {
		return nil, err
	}
	return catalog, nil
}

func addFolders(catalog *contentdirectory.Catalog, parentID string, folders []config.LibraryFolder) error {
	for _, folder := range folders {
		id, err := catalog.AddContainer(parentID, folder.Title)
		if err != nil {
			return fmt.Errorf("adding folder %q: %w", folder.Title, err)
		}

		for _, item := range folder.Items {
			class, ok := itemClasses[item.Class]
			if !ok {
				return fmt.Errorf("item %q: unknown class %q", item.Title, item.Class)
			}
			_, err := catalog.AddItem(id, item.Title, class, contentdirectory.Resource{
				Path:         item.Path,
				ProtocolInfo: item.ProtocolInfo,
				Size:         item.Size,
			})
			if err != nil {
				return fmt.Errorf("adding item %q: %w", item.Title, err)
			}
		}

		if err := addFolders(catalog, id, folder.Folders); err != nil {
			return err
		}
	}
	return nil
}
