package builder

// Stage is one fixed phase of the build pipeline
type Stage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stage ids, in execution order
const (
	StageInputValidation = "input_validation"
	StageFileDownload    = "file_download"
	StageFileExtract     = "file_extract"
	StageFileValidate    = "file_validate"
	StageTeamBuild       = "team_build"
	StageTeamPush        = "team_push"
	StageCleanup         = "cleanup"
)

var stages = []Stage{
	{ID: StageInputValidation, Name: "Input validation"},
	{ID: StageFileDownload, Name: "File download"},
	{ID: StageFileExtract, Name: "File extract"},
	{ID: StageFileValidate, Name: "File validate"},
	{ID: StageTeamBuild, Name: "Team build"},
	{ID: StageTeamPush, Name: "Team push"},
	{ID: StageCleanup, Name: "Cleanup"},
}

// Stages returns the pipeline stages in their fixed execution order
func Stages() []Stage {
	return append([]Stage(nil), stages...)
}
