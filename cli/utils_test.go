package cli

import (
	"bytes"
	"testing"

	"go.viam.com/test"
)

func TestSamePath(t *testing.T) {
	equal, _ := samePath("/x", "/x")
	test.That(t, equal, test.ShouldBeTrue)
	equal, _ = samePath("/x", "x")
	test.That(t, equal, test.ShouldBeFalse)
}

func TestCheckOutput(t *testing.T) {
	test.That(t, checkOutput("/data/out.pcd", "/data/a.pcd", "/data/b.pcd"), test.ShouldBeNil)
	test.That(t, checkOutput("/data/out.pcd"), test.ShouldBeNil)
	err := checkOutput("/data/../data/b.pcd", "/data/a.pcd", "/data/b.pcd")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "would overwrite")
}

func TestPreviewPath(t *testing.T) {
	test.That(t, previewPath("/tmp/scene.pcd", 3), test.ShouldEqual, "/tmp/scene_depth_0003.png")
	test.That(t, previewPath("scene", 12), test.ShouldEqual, "scene_depth_0012.png")
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	printf(&buf, "hello %d", 1)
	test.That(t, buf.String(), test.ShouldEqual, "hello 1\n")

	buf.Reset()
	warningf(&buf, "careful")
	test.That(t, buf.String(), test.ShouldContainSubstring, "Warning: ")
	test.That(t, buf.String(), test.ShouldEndWith, "careful\n")
}
