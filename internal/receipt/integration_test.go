package receipt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/amount-extractor/internal/extraction"
	"github.com/zombor/amount-extractor/internal/receipt"
)

// keywordGenerator labels an amount by the last word before it
type keywordGenerator struct{}

func (keywordGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, `Pa1d"`):
		return "paid", nil
	case strings.Contains(prompt, `Due"`):
		return "due", nil
	case strings.Contains(prompt, `T0ta1"`), strings.Contains(prompt, `T0ta1:"`):
		return "total_bill", nil
	}
	return "other_amount", nil
}

func (keywordGenerator) Close() error {
	return nil
}

// staticOCR returns the same text for every image
type staticOCR struct {
	text string
}

func (s staticOCR) Recognize(ctx context.Context, img image.Image) (string, error) {
	return s.text, nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       *receipt.BoltDB
		store    receipt.Storage
		service  *receipt.Service
		server   *receipt.Server
		ghServer *ghttp.Server
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		var err error
		db, err = receipt.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = receipt.NewLocalStorage(filepath.Join(tempDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())

		classifier, err := extraction.NewClassifier(extraction.ClassifierConfig{
			Generator:   keywordGenerator{},
			Concurrency: 4,
		})
		Expect(err).NotTo(HaveOccurred())

		pipeline := extraction.NewPipeline(classifier, staticOCR{text: "Total 250\nPaid 200\nDue 50"}, extraction.Config{})
		service = receipt.NewService(pipeline, db, store)
		server = receipt.NewServer(service, receipt.BasicAuth{}, "test")

		ghServer = ghttp.NewServer()
		ghServer.SetAllowUnhandledRequests(true)
		ghServer.SetUnhandledRequestStatusCode(http.StatusInternalServerError)
		ghServer.RouteToHandler("GET", "/api/v1/extractions", server.ServeHTTP)
		ghServer.RouteToHandler("POST", "/api/v1/extract/text", server.ServeHTTP)
		ghServer.RouteToHandler("POST", "/api/v1/extract/image", server.ServeHTTP)
	})

	AfterEach(func() {
		ghServer.Close()
		db.Close()
	})

	listExtractions := func() []map[string]any {
		resp, err := http.Get(ghServer.URL() + "/api/v1/extractions")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var extractions []map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&extractions)).To(Succeed())
		return extractions
	}

	It("should extract amounts from text end to end", func() {
		resp, err := http.Post(ghServer.URL()+"/api/v1/extract/text", "application/json",
			strings.NewReader(`{"text": "Total 540 Paid 500 Due 40"}`))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var result struct {
			ID string `json:"id"`
			extraction.Result
		}
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.ID).NotTo(BeEmpty())
		Expect(result.Status).To(Equal(extraction.StatusOK))
		Expect(result.Currency).To(Equal("INR"))
		Expect(result.Amounts).To(Equal([]extraction.ClassifiedAmount{
			{Type: extraction.LabelTotalBill, Value: 540, Source: "text: 'T0ta1 540'"},
			{Type: extraction.LabelPaid, Value: 500, Source: "text: 'T0ta1 540 Pa1d 500'"},
			{Type: extraction.LabelDue, Value: 40, Source: "text: 'T0ta1 540 Pa1d 500 Due 40'"},
		}))

		saved, err := service.GetExtraction(result.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Result).To(Equal(result.Result))
		Expect(listExtractions()).To(HaveLen(1))
	})

	It("should extract amounts from an uploaded image end to end", func() {
		img := image.NewGray(image.Rect(0, 0, 60, 30))
		var pngData bytes.Buffer
		Expect(png.Encode(&pngData, img)).To(Succeed())

		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		part, err := writer.CreateFormFile("file", "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = io.Copy(part, &pngData)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/v1/extract/image", writer.FormDataContentType(), &b)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var result struct {
			ID string `json:"id"`
			extraction.Result
		}
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.Status).To(Equal(extraction.StatusOK))
		Expect(result.Amounts).To(HaveLen(3))
		Expect(result.Amounts[2].Type).To(Equal(extraction.LabelDue))

		data, contentType, err := service.GetExtractionFile(result.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(contentType).To(Equal("image/png"))
		Expect(data).NotTo(BeEmpty())
		Expect(filepath.Join(tempDir, "uploads", result.ID+"_receipt.png")).To(BeAnExistingFile())
	})

	It("should record text without numbers as no_amounts_found", func() {
		resp, err := http.Post(ghServer.URL()+"/api/v1/extract/text", "application/json",
			strings.NewReader(`{"text": "Thank you for visiting"}`))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		extractions := listExtractions()
		Expect(extractions).To(HaveLen(1))
		Expect(extractions[0]["result"]).To(HaveKeyWithValue("status", "no_amounts_found"))
	})
})
