package models

// Repository is a read-only reference entry from the repos file.
type Repository struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ReposFile is the repository list.
type ReposFile struct {
	Repositories []Repository `json:"repositories"`
}

// EmptyReposFile is served while the repos file has not been created yet.
func EmptyReposFile() *ReposFile {
	return &ReposFile{Repositories: []Repository{}}
}
