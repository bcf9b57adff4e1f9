package filestore

import "fmt"

func errDuplicate(table string, key any) error {
	return fmt.Errorf("filestore: duplicate key in %s: %v", table, key)
}
