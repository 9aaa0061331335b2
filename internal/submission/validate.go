package submission

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lehrershow/songsubmit/internal/db"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/validators"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("basicemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// Request is the body of POST /api/v1/submissions
type Request struct {
	Name           string `json:"name" validate:"required,max=100"`
	Email          string `json:"email" validate:"required,max=254,basicemail"`
	SubmissionType string `json:"submissionType" validate:"required,oneof=search youtube file"`
	SongSearch     string `json:"songSearch" validate:"required_if=SubmissionType search,max=300"`
	YouTubeURL     string `json:"youtubeUrl" validate:"required_if=SubmissionType youtube,max=2048"`
	SongFile       string `json:"songFile" validate:"required_if=SubmissionType file,max=2048"`
	SongName       string `json:"songName" validate:"required_if=SubmissionType file,max=300"`
	AdditionalInfo string `json:"additionalInfo" validate:"max=2000"`
	TurnstileToken string `json:"turnstileToken" validate:"required,max=2048"`
}

// Validated is a request that passed every check. Only the reference
// belonging to Type is set.
type Validated struct {
	Name           string
	Email          string
	Type           db.SubmissionType
	SongSearch     string
	YouTubeID      string
	SongFile       string
	SongName       string
	AdditionalInfo string
	TurnstileToken string
}

// Validate trims and checks req. Fields that do not belong to the declared
// type are discarded before the checks run.
func Validate(req Request, uploads *validators.UploadValidator) (*Validated, error) {
	req = clean(req)

	switch db.SubmissionType(req.SubmissionType) {
	case db.TypeSearch:
		req.YouTubeURL, req.SongFile, req.SongName = "", "", ""
	case db.TypeYouTube:
		req.SongSearch, req.SongFile, req.SongName = "", "", ""
	case db.TypeFile:
		req.SongSearch, req.YouTubeURL = "", ""
	}

	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	out := &Validated{
		Name:           req.Name,
		Email:          req.Email,
		Type:           db.SubmissionType(req.SubmissionType),
		AdditionalInfo: req.AdditionalInfo,
		TurnstileToken: req.TurnstileToken,
	}

	switch out.Type {
	case db.TypeSearch:
		out.SongSearch = req.SongSearch
	case db.TypeYouTube:
		id, ok := validators.ExtractVideoID(req.YouTubeURL)
		if !ok {
			return nil, fieldError("youtubeUrl", "youtubeUrl is not a valid YouTube link or video ID")
		}
		out.YouTubeID = id
	case db.TypeFile:
		if uploads == nil || !uploads.ValidURL(req.SongFile) {
			return nil, fieldError("songFile", "songFile is not a valid upload link")
		}
		out.SongFile = req.SongFile
		out.SongName = req.SongName
	}

	return out, nil
}

func clean(req Request) Request {
	req.Name = cleanText(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.SubmissionType = strings.TrimSpace(req.SubmissionType)
	req.SongSearch = cleanText(req.SongSearch)
	req.YouTubeURL = strings.TrimSpace(req.YouTubeURL)
	req.SongFile = strings.TrimSpace(req.SongFile)
	req.SongName = cleanText(req.SongName)
	req.AdditionalInfo = cleanText(req.AdditionalInfo)
	req.TurnstileToken = strings.TrimSpace(req.TurnstileToken)
	return req
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.ValidationError("invalid submission").WithCause(err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = message(fe)
		}
	}

	return apperrors.ValidationError(message(verrs[0])).WithDetails(map[string]any{"fields": fields})
}

func fieldError(field, msg string) error {
	return apperrors.ValidationError(msg).WithDetails(map[string]any{
		"fields": map[string]any{field: msg},
	})
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_if":
		_, typ, _ := strings.Cut(fe.Param(), " ")
		return fmt.Sprintf("%s is required for %s submissions", fe.Field(), typ)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "basicemail":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
