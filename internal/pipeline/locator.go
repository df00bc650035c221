package pipeline

import (
	"fmt"

	"github.com/AppleLamps/gptveo/internal/domain"
)

// Locate extracts the artifact reference from a finished operation. It is a
// pure function: no I/O happens here. A failure payload in the operation maps
// to JobFailedError; a success payload that cannot be resolved to a usable
// video reference maps to MalformedResultError. When expectedBucket is
// non-empty, references pointing outside that bucket are rejected.
func Locate(op *domain.Operation, expectedBucket string) (domain.ArtifactRef, error) {
	if op == nil || !op.Done {
		return domain.ArtifactRef{}, &domain.MalformedResultError{
			OperationName: operationName(op),
			Reason:        "operation is not finished",
		}
	}
	if op.Failed() {
		return domain.ArtifactRef{}, &domain.JobFailedError{
			OperationName: op.Name,
			Code:          op.Failure.Code,
			Message:       op.Failure.Message,
		}
	}
	if op.Result == nil || len(op.Result.Videos) == 0 {
		return domain.ArtifactRef{}, &domain.MalformedResultError{
			OperationName: op.Name,
			Reason:        "result carries no videos",
		}
	}

	video := op.Result.Videos[0]
	ref, err := domain.ParseArtifactURI(video.GCSURI)
	if err != nil {
		return domain.ArtifactRef{}, &domain.MalformedResultError{
			OperationName: op.Name,
			Reason:        fmt.Sprintf("unusable video uri %q", video.GCSURI),
		}
	}
	if expectedBucket != "" && ref.Bucket != expectedBucket {
		return domain.ArtifactRef{}, &domain.MalformedResultError{
			OperationName: op.Name,
			Reason:        fmt.Sprintf("video stored in %q, expected bucket %q", ref.Bucket, expectedBucket),
		}
	}
	return ref, nil
}

func operationName(op *domain.Operation) string {
	if op == nil {
		return ""
	}
	return op.Name
}
