package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genproto/googleapis/rpc/status"

	"fraudocr/pkg/models"
)

type fakeAnnotator struct {
	requests [][]int32
	failPage int32
}

func (f *fakeAnnotator) BatchAnnotateFiles(_ context.Context, req *visionpb.BatchAnnotateFilesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error) {
	pages := req.GetRequests()[0].GetPages()
	f.requests = append(f.requests, pages)

	fileResp := &visionpb.AnnotateFileResponse{}
	for _, p := range pages {
		if p == f.failPage {
			fileResp.Responses = append(fileResp.Responses, &visionpb.AnnotateImageResponse{
				Error: &status.Status{Code: 3, Message: "bad page"},
			})
			continue
		}
		fileResp.Responses = append(fileResp.Responses, &visionpb.AnnotateImageResponse{
			FullTextAnnotation: &visionpb.TextAnnotation{Text: "text of page"},
		})
	}
	return &visionpb.BatchAnnotateFilesResponse{Responses: []*visionpb.AnnotateFileResponse{fileResp}}, nil
}

func TestVisionExtractorBatchesPages(t *testing.T) {
	fake := &fakeAnnotator{failPage: 6}
	v := newVisionExtractor(fake, func(*Document) (int, error) { return 7, nil })

	res, err := v.Extract(context.Background(), &Document{Filename: "a.pdf", Content: samplePDF})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(fake.requests) != 2 || len(fake.requests[0]) != 5 || fake.requests[1][0] != 6 {
		t.Fatalf("requests = %v", fake.requests)
	}
	if res.TotalPages != 7 || len(res.Results) != 7 {
		t.Fatalf("result = %+v", res)
	}
	for _, p := range res.Results {
		want := models.PageStatusSuccess
		if p.Page == 6 {
			want = models.PageStatusFailure
		}
		if p.Status != want {
			t.Errorf("page %d status = %s, want %s", p.Page, p.Status, want)
		}
	}
}

func TestVisionExtractorEmptyDocument(t *testing.T) {
	fake := &fakeAnnotator{failPage: 1}
	v := newVisionExtractor(fake, func(*Document) (int, error) { return 1, nil })

	_, err := v.Extract(context.Background(), &Document{Filename: "a.pdf", Content: samplePDF})
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
}

func TestPagesFromDocument(t *testing.T) {
	text := "first page\nsecond page\n"
	doc := &documentaipb.Document{
		Text: text,
		Pages: []*documentaipb.Document_Page{
			{PageNumber: 1, Layout: &documentaipb.Document_Page_Layout{TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 0, EndIndex: 11}},
			}}},
			{PageNumber: 2, Layout: &documentaipb.Document_Page_Layout{TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 11, EndIndex: int64(len(text))}},
			}}},
			{PageNumber: 3},
		},
	}

	res := pagesFromDocument("a.pdf", doc)
	if res.TotalPages != 3 {
		t.Fatalf("TotalPages = %d", res.TotalPages)
	}
	if res.Results[0].Text != "first page\n" || res.Results[1].Text != "second page\n" {
		t.Fatalf("texts = %q, %q", res.Results[0].Text, res.Results[1].Text)
	}
	if res.Results[2].Status != models.PageStatusFailure {
		t.Fatalf("page without text should fail: %+v", res.Results[2])
	}
}
