package db

// Tree is one independent genealogical database managed by the installation.
type Tree struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TreeStore interface for tree lookup.
type ITreeStore interface {
	GetTreeByName(name string) (*Tree, error)
	ListTrees() ([]*Tree, error)
}
